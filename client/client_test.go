package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/auth"
	"stresstest-server/client"
	"stresstest-server/confs"
	"stresstest-server/dashboard"
	"stresstest-server/entities"
	"stresstest-server/repositories"
	"stresstest-server/server"
	"stresstest-server/usecases"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &confs.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.Issuer = "stresstest-server"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPassword = "pw"
	cfg.Telemetry.FlushInterval = time.Minute
	cfg.Tests.Versions = entities.DefaultVersions

	srv, err := server.NewServer(cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func loggedIn(t *testing.T, ts *httptest.Server) (*client.Client, *auth.Session) {
	t.Helper()
	c := client.New(ts.URL)
	res, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	require.True(t, res.Success)

	session := auth.NewSession()
	session.SignIn(auth.Identity{UserID: res.UserID, Username: res.Username}, res.Token)
	return c, session
}

func TestLogin(t *testing.T) {
	ts := newBackend(t)
	c := client.New(ts.URL)

	_, err := c.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	res, err := c.Login(context.Background(), "admin", "pw")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.Username)
	assert.NotEmpty(t, res.Token)

	tests, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tests)
}

func TestErrorMapping(t *testing.T) {
	ts := newBackend(t)
	c, _ := loggedIn(t, ts)
	ctx := context.Background()

	_, err := c.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	err = c.Create(ctx, &entities.DeviceTest{SerialNumber: "SN1"})
	var verr *entities.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "imei")

	rec := &entities.DeviceTest{SerialNumber: "SN1", IMEI: "1"}
	require.NoError(t, c.Create(ctx, rec))
	require.NotEmpty(t, rec.ID)
	_, err = c.Complete(ctx, rec.ID)
	assert.ErrorIs(t, err, usecases.ErrInvalidTransition)

	ts.Close()
	_, err = c.List(ctx)
	assert.ErrorIs(t, err, repositories.ErrStoreUnavailable)
}

func TestDashboardOverClient(t *testing.T) {
	ts := newBackend(t)
	c, session := loggedIn(t, ts)
	ctx := context.Background()

	d := dashboard.New(c, session, dashboard.Options{Validator: entities.NewValidator(entities.DefaultVersions)})
	require.NoError(t, d.Refresh(ctx))

	f, err := d.OpenAdd()
	require.NoError(t, err)
	f.Edit(func(in *entities.DeviceTestInput) {
		in.SerialNumber = "SN1"
		in.IMEI = "111"
		in.SoftwareVersion = "v2.2.0"
	})
	res, err := f.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, dashboard.OutcomeCommitted, res.Outcome)
	id := res.Record.ID

	res, err = d.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusRunning, res.Record.Status)
	res, err = d.MarkCompleted(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusCompleted, res.Record.Status)
	assert.Equal(t, 1, d.Stats().Completed)

	// a second operator deletes the record underneath the first
	other, _ := loggedIn(t, ts)
	require.NoError(t, other.Delete(ctx, id))

	f, err = d.OpenEdit(ctx, id)
	require.NoError(t, err)
	f.Edit(func(in *entities.DeviceTestInput) { in.Remarks = "late" })
	res, err = f.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, dashboard.OutcomeStale, res.Outcome)
	_, ok := d.Record(id)
	assert.False(t, ok)
}
