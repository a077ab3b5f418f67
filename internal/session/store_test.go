package session_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_radar/internal/domain"
	"review_radar/internal/session"
)

func sample() domain.TokenSet {
	return domain.TokenSet{
		{Name: "bid", Value: "abc123", Domain: ".douban.com", Path: "/"},
		{Name: "dbcl2", Value: "\"1:xyz\"", Domain: ".douban.com", Path: "/", Expires: 1893456000, HTTPOnly: true},
	}
}

func TestFileStore_RoundTripAndAbsent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	st := session.NewFileStore(path)

	_, err := st.Load(ctx)
	require.ErrorIs(t, err, domain.ErrSessionAbsent)

	require.NoError(t, st.Save(ctx, sample()))
	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestFileStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	st := session.NewFileStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, st.Save(ctx, sample()))
	require.NoError(t, st.Save(ctx, domain.TokenSet{{Name: "only", Value: "one"}}))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := session.NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSessionAbsent)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	ctx := context.Background()
	st := session.NewRedisStore(rc, "")

	_, err := st.Load(ctx)
	require.ErrorIs(t, err, domain.ErrSessionAbsent)

	require.NoError(t, st.Save(ctx, sample()))
	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
	assert.Zero(t, mr.TTL("review_radar:session"))
}

func TestParseCookieHeader(t *testing.T) {
	ts := session.ParseCookieHeader(` bid=abc ; ll="108288"; junk; =novalue; ck=Zz9`, ".douban.com")
	require.Len(t, ts, 3)
	assert.Equal(t, "bid", ts[0].Name)
	assert.Equal(t, `"108288"`, ts[1].Value)
	assert.Equal(t, ".douban.com", ts[2].Domain)
	assert.Equal(t, `bid=abc; ll="108288"; ck=Zz9`, session.Header(ts))
}

func TestRestoreAndHarvestThroughJar(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, _ := url.Parse("https://movie.douban.com/subject/1/comments")

	session.Restore(jar, u, session.ParseCookieHeader("bid=abc; ck=xyz", "movie.douban.com"))
	got := session.Harvest(jar, u)
	require.Len(t, got, 2)
	names := []string{got[0].Name, got[1].Name}
	assert.ElementsMatch(t, []string{"bid", "ck"}, names)
	assert.Equal(t, "movie.douban.com", got[0].Domain)
}

func TestMerge_KeepsRestoredAttributes(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, _ := url.Parse("https://movie.douban.com/subject/1/comments")
	exp := time.Now().Add(24 * time.Hour).Unix()
	restored := domain.TokenSet{
		{Name: "dbcl2", Value: "login", Domain: ".douban.com", Path: "/", Expires: exp, Secure: true, HTTPOnly: true},
		{Name: "bid", Value: "abc", Domain: ".douban.com", Path: "/"},
	}
	session.Restore(jar, u, restored)

	merged, changed := session.Merge(restored, session.Harvest(jar, u))
	assert.False(t, changed, "a plain read-back is not a change")
	assert.Equal(t, restored, merged)

	// the server rotates bid and sets a new cookie
	jar.SetCookies(u, []*http.Cookie{
		{Name: "bid", Value: "def", Domain: ".douban.com", Path: "/"},
		{Name: "ck", Value: "Zz9"},
	})
	merged, changed = session.Merge(restored, session.Harvest(jar, u))
	require.True(t, changed)
	require.Len(t, merged, 3)
	assert.Equal(t, restored[0], merged[0], "login token keeps expiry and flags")
	assert.Equal(t, "def", merged[1].Value)
	assert.Equal(t, ".douban.com", merged[1].Domain)
	assert.Equal(t, "ck", merged[2].Name)
	assert.Equal(t, "abc", restored[1].Value, "restored set is not mutated")
}
