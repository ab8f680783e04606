package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/storage/database"
	"github.com/Marwebofficial/studio-sub000/tests"
)

// openTestDB connects to TEST_DATABASE_URL, migrates it and empties the tables.
// Tests using it are skipped when the variable is not set.
func openTestDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db.DB))
	_, err = db.ExecContext(ctx, `TRUNCATE usage_event, "user"`)
	require.NoError(t, err)
	return db
}

func TestUserQuery(t *testing.T) {
	active := true
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "no filter",
			wantSQL: `SELECT ` + userColumns + ` FROM "user" ORDER BY created_at DESC`,
		},
		{
			name:     "search and active",
			filter:   &user.QueryFilter{Search: "ada", IsActive: &active},
			ordering: []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "password_hash"}},
			wantSQL: `SELECT ` + userColumns + ` FROM "user" WHERE (name ILIKE $1 OR username ILIKE $1 OR email ILIKE $1) AND is_active = $2` +
				` ORDER BY name ASC, created_at DESC`,
			wantArgs: []interface{}{"%ada%", true},
		},
		{
			name:   "roles and creation date",
			filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}, CreatedFrom: from},
			wantSQL: `SELECT ` + userColumns + ` FROM "user" WHERE EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ANY($1)) AND created_at >= $2` +
				` ORDER BY created_at DESC`,
			wantArgs: []interface{}{[]string{"admin:%"}, from},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args := userQuery(tt.filter, tt.ordering)
			assert.Equal(t, tt.wantSQL, q)
			require.Len(t, args, len(tt.wantArgs))
			for i, want := range tt.wantArgs {
				if ss, ok := want.([]string); ok {
					assert.EqualValues(t, ss, args[i])
					continue
				}
				assert.Equal(t, want, args[i])
			}
		})
	}
}

func TestUserRow(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	usr := user.User{ID: "id", Name: "Ada", Email: "ada@studio.test", Roles: nil, CreatedAt: now, UpdatedAt: now}

	row := toUserRow(usr)
	assert.False(t, row.Username.Valid)
	assert.False(t, row.LastLogin.Valid)
	assert.True(t, row.IsActive.Bool)
	assert.NotNil(t, row.Roles)

	back := row.user()
	assert.Equal(t, "Ada", back.Name)
	assert.Empty(t, back.Username)
	assert.True(t, back.Active())
	assert.True(t, back.LastLogin.IsZero())
	assert.Equal(t, now, back.CreatedAt)
}

func TestUserRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	ada := testutil.CreateUser(t, repo, "Ada Lovelace", "ada", "ada@studio.test", "pwd", []string{user.RoleAdminOwner}, true)
	bob := testutil.CreateUser(t, repo, "Bob", "bob", "bob@studio.test", "", []string{user.RoleStudent}, false)

	cnt, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUniqueness(ctx, "ada", ""))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUniqueness(ctx, "", "bob@studio.test"))
	assert.NoError(t, repo.CheckUniqueness(ctx, "ada", "ada@studio.test", ada))

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "ada@studio.test"})
	require.NoError(t, err)
	assert.Equal(t, ada.ID, got.ID)
	assert.NoError(t, got.CheckPassword("pwd"))

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
	assert.Equal(t, user.ErrNotFound, err)

	admins, err := repo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleAdmin}}, nil)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, ada.ID, admins[0].ID)

	inactive := false
	users, err := repo.QueryUsers(ctx, &user.QueryFilter{IsActive: &inactive}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.ID, users[0].ID)

	bob.Name = "Robert"
	bob.LastLogin = time.Now().UTC()
	_, err = repo.UpdateUser(ctx, bob)
	require.NoError(t, err)
	got, err = repo.GetUser(ctx, user.GetFilter{ID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.Name)
	assert.False(t, got.LastLogin.IsZero())

	n, err := repo.DeleteUsersByID(ctx, ada.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUsageRepository(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	repo := NewUsageRepository(db)
	ctx := context.Background()

	ada := testutil.CreateUser(t, users, "Ada", "ada", "ada@studio.test", "", nil, true)
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, kind := range usage.Kinds {
		_, err := repo.CreateEvent(ctx, usage.Event{
			UserID:    ada.ID,
			Kind:      kind,
			Tokens:    usage.Tokens{Input: 10 * (i + 1), Output: i},
			CreatedAt: day.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	events, err := repo.QueryEvents(ctx, usage.Range{From: day, To: day.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, usage.KindAnswer, events[0].Kind)
	assert.Equal(t, usage.KindQuiz, events[1].Kind)
	assert.Equal(t, ada.ID, events[0].UserID)
	assert.Equal(t, usage.Tokens{Input: 20, Output: 1}, events[1].Tokens)
}
