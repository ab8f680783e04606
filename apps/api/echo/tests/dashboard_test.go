package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/tests"
)

func day(d, h int) time.Time {
	return time.Date(2024, time.March, d, h, 0, 0, 0, time.UTC)
}

func Test_dashboardApi(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := getToken(t, admin)

	for _, evt := range []usage.Event{
		{UserID: student.ID, Kind: usage.KindAnswer, CreatedAt: day(1, 9)},
		{UserID: student.ID, Kind: usage.KindAnswer, CreatedAt: day(1, 10)},
		{UserID: student.ID, Kind: usage.KindQuiz, CreatedAt: day(3, 23)},
		{UserID: admin.ID, Kind: usage.KindImage, CreatedAt: day(3, 8)},
		// out of range
		{UserID: admin.ID, Kind: usage.KindSpeech, CreatedAt: day(4, 0)},
		{UserID: admin.ID, Kind: usage.KindSpeech, CreatedAt: time.Date(2024, time.February, 29, 23, 59, 0, 0, time.UTC)},
	} {
		_, err := env.usageRepo.CreateEvent(context.Background(), evt)
		require.NoError(t, err)
	}

	want := usage.Dashboard{
		From: day(1, 0),
		To:   day(4, 0),
		Totals: map[usage.Kind]int{
			usage.KindAnswer: 2, usage.KindQuiz: 1, usage.KindImage: 1, usage.KindSpeech: 0,
		},
		Total:       4,
		ActiveUsers: 2,
		Daily: []usage.DailyCount{
			{Day: "2024-03-01", Counts: map[usage.Kind]int{usage.KindAnswer: 2}, Total: 2},
			{Day: "2024-03-02", Counts: map[usage.Kind]int{}},
			{Day: "2024-03-03", Counts: map[usage.Kind]int{usage.KindQuiz: 1, usage.KindImage: 1}, Total: 2},
		},
	}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/dashboard", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admins only", path: "/v1/dashboard", token: getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "plain dates", path: "/v1/dashboard?from=2024-03-01&to=2024-03-04", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, want),
		},
		{
			name: "RFC 3339", path: "/v1/dashboard?from=2024-03-01T00:00:00Z&to=2024-03-04T00:00:00Z", token: adminToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, want),
		},
		{
			name: "invalid date", path: "/v1/dashboard?from=yesterday", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"from": "invalid date"}),
		},
		{
			name: "from after to", path: "/v1/dashboard?from=2024-03-04&to=2024-03-01", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"from": "must be before to"}),
		},
		{
			name: "range too long", path: "/v1/dashboard?from=2022-01-01&to=2024-03-01", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"from": "range cannot exceed 366 days"}),
		},
		{name: "default range", path: "/v1/dashboard", token: adminToken, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
