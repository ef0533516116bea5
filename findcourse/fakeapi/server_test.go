package fakeapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/findcourse-client/centers"
	"github.com/jrsteele09/findcourse-client/findcourse"
	"github.com/jrsteele09/findcourse-client/findcourse/fakeapi"
	apperrors "github.com/jrsteele09/findcourse-client/internal/errors"
	"github.com/jrsteele09/findcourse-client/internal/utils"
	"github.com/jrsteele09/findcourse-client/token/jwt"
	"github.com/jrsteele09/findcourse-client/users"
	"github.com/stretchr/testify/require"
)

const password = "Secret123"

func setup(t *testing.T, options ...fakeapi.Option) (*fakeapi.Server, *findcourse.Client, users.Profile) {
	t.Helper()

	api := fakeapi.New(options...)
	profile, err := api.AddUser(users.Profile{FirstName: "Dilnoza", Email: "dilnoza@example.uz", Role: users.RoleCEO}, password)
	require.NoError(t, err)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return api, findcourse.New(srv.URL), profile
}

func login(t *testing.T, c *findcourse.Client) findcourse.TokenPair {
	t.Helper()

	res := c.Login(context.Background(), users.Credentials{Email: "dilnoza@example.uz", Password: password})
	require.True(t, res.OK, res.Message)
	return res.Data
}

func TestLogin(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	_, c, _ := setup(t, fakeapi.WithClock(clock), fakeapi.WithAccessTTL(time.Hour))

	t.Run("issues a decodable token", func(t *testing.T) {
		tokens := login(t, c)
		require.NotEmpty(t, tokens.RefreshToken)

		claims, err := jwt.Decode(tokens.AccessToken)
		require.NoError(t, err)
		require.Equal(t, clock.Now().Add(time.Hour).Unix(), claims.Exp.Unix())
		require.Equal(t, users.RoleCEO, claims.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		res := c.Login(context.Background(), users.Credentials{Email: "dilnoza@example.uz", Password: "nope"})
		require.False(t, res.OK)
		require.Equal(t, findcourse.KindUnauthorized, res.Kind)
		require.Equal(t, "Invalid email or password", res.Message)
	})

	t.Run("unknown email", func(t *testing.T) {
		res := c.Login(context.Background(), users.Credentials{Email: "nobody@example.uz", Password: password})
		require.Equal(t, findcourse.KindUnauthorized, res.Kind)
	})
}

func TestWithoutRoleClaim(t *testing.T) {
	_, c, _ := setup(t, fakeapi.WithoutRoleClaim())

	claims, err := jwt.Decode(login(t, c).AccessToken)
	require.NoError(t, err)
	require.False(t, claims.HasRole())
}

func TestRefreshAndExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	api, c, _ := setup(t, fakeapi.WithClock(clock), fakeapi.WithAccessTTL(100*time.Second))
	ctx := context.Background()
	tokens := login(t, c)

	require.True(t, c.MyData(ctx, tokens.AccessToken).OK)

	clock.Advance(101 * time.Second)
	expired := c.MyData(ctx, tokens.AccessToken)
	require.Equal(t, findcourse.KindUnauthorized, expired.Kind)

	refreshed := c.Refresh(ctx, tokens.RefreshToken)
	require.True(t, refreshed.OK)
	require.True(t, c.MyData(ctx, refreshed.Data.AccessToken).OK)
	require.Equal(t, 1, api.Calls(fakeapi.PatternRefresh))

	api.RevokeRefreshTokens()
	revoked := c.Refresh(ctx, tokens.RefreshToken)
	require.Equal(t, findcourse.KindUnauthorized, revoked.Kind)
}

func TestProfileEndpoints(t *testing.T) {
	api, c, profile := setup(t)
	ctx := context.Background()
	token := login(t, c).AccessToken

	t.Run("mydata", func(t *testing.T) {
		res := c.MyData(ctx, token)
		require.True(t, res.OK)
		require.Equal(t, profile, res.Data)

		api.HideProfileRole(true)
		defer api.HideProfileRole(false)
		require.Empty(t, c.MyData(ctx, token).Data.Role)
	})

	t.Run("update only own profile", func(t *testing.T) {
		res := c.UpdateUser(ctx, token, profile.ID, users.ProfileUpdate{LastName: utils.Ptr("Karimova")})
		require.True(t, res.OK)
		require.Equal(t, "Karimova", res.Data.LastName)
		require.Equal(t, "Dilnoza", res.Data.FirstName)

		other := c.UpdateUser(ctx, token, profile.ID+1, users.ProfileUpdate{LastName: utils.Ptr("x")})
		require.Equal(t, findcourse.KindUnauthorized, other.Kind)
		require.Equal(t, http.StatusForbidden, other.Status)

		blank := c.UpdateUser(ctx, token, profile.ID, users.ProfileUpdate{Email: utils.Ptr(" ")})
		require.Equal(t, http.StatusBadRequest, blank.Status)
		require.Equal(t, "Email cannot be empty", blank.Message)
	})

	t.Run("upload", func(t *testing.T) {
		res := c.UploadImage(ctx, token, "me.jpg", strings.NewReader("jpeg"))
		require.True(t, res.OK)
		require.True(t, strings.HasSuffix(res.Data, "-me.jpg"))
		require.Equal(t, []string{res.Data}, api.Uploads())
	})

	t.Run("delete revokes the session", func(t *testing.T) {
		tokens := login(t, c)
		require.True(t, c.DeleteUser(ctx, tokens.AccessToken, profile.ID).OK)

		_, ok := api.User(profile.ID)
		require.False(t, ok)
		require.Equal(t, findcourse.KindUnauthorized, c.Refresh(ctx, tokens.RefreshToken).Kind)
		require.Equal(t, findcourse.KindUnauthorized, c.MyData(ctx, tokens.AccessToken).Kind)
	})
}

func TestLikedEndpoints(t *testing.T) {
	list := []centers.Center{{ID: 1, Name: "Najot Ta'lim"}, {ID: 2, Name: "PDP Academy"}}
	_, c, _ := setup(t, fakeapi.WithCenters(list))
	ctx := context.Background()
	token := login(t, c).AccessToken

	all := c.Centers(ctx)
	require.True(t, all.OK)
	require.Len(t, all.Data, 2)

	liked := c.Like(ctx, token, 2)
	require.True(t, liked.OK)
	require.Equal(t, 2, liked.Data.CenterID)

	require.Equal(t, findcourse.KindValidation, c.Like(ctx, token, 2).Kind)
	require.Equal(t, findcourse.KindNotFound, c.Like(ctx, token, 99).Kind)

	items := c.Liked(ctx, token)
	require.True(t, items.OK)
	require.Equal(t, []findcourse.LikedItem{liked.Data}, items.Data)

	require.True(t, c.Unlike(ctx, token, liked.Data.ID).OK)
	require.Equal(t, findcourse.KindNotFound, c.Unlike(ctx, token, liked.Data.ID).Kind)
	require.Empty(t, c.Liked(ctx, token).Data)
}

func TestFailAndHold(t *testing.T) {
	api, c, _ := setup(t)
	ctx := context.Background()
	tokens := login(t, c)

	api.Fail(fakeapi.PatternRefresh, http.StatusServiceUnavailable)
	require.Equal(t, findcourse.KindServer, c.Refresh(ctx, tokens.RefreshToken).Kind)
	api.Fail(fakeapi.PatternRefresh, 0)

	release := api.Hold(fakeapi.PatternRefresh)
	var wg sync.WaitGroup
	var res findcourse.Result[findcourse.TokenPair]
	wg.Add(1)
	go func() {
		defer wg.Done()
		res = c.Refresh(ctx, tokens.RefreshToken)
	}()

	require.Eventually(t, func() bool {
		return api.Calls(fakeapi.PatternRefresh) == 2
	}, time.Second, 5*time.Millisecond)
	release()
	wg.Wait()
	require.True(t, res.OK)
}

func TestAddUser_RejectsWeakPassword(t *testing.T) {
	api := fakeapi.New()

	_, err := api.AddUser(users.Profile{Email: "weak@example.uz"}, "secret")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Empty(t, api.Users())

	_, err = api.AddUser(users.Profile{Email: "weak@example.uz"}, "Secret123")
	require.NoError(t, err)
	require.Len(t, api.Users(), 1)
}
