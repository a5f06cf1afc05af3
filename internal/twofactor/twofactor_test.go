package twofactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/axiohq/credcore/internal/otp"
	"github.com/axiohq/credcore/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *otp.Manager, *fakeClock, *storage.MemoryRemote) {
	t.Helper()
	om := otp.NewManager(otp.Config{Issuer: "credcore-test"})
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	remote := storage.NewMemoryRemote()
	m := New(storage.NewMemoryCache(), remote, om, nil, clock.Now)
	return m, om, clock, remote
}

// enroll runs the full Setup→Enable handshake and returns the issued
// backup codes.
func enroll(t *testing.T, m *Manager, om *otp.Manager, clock *fakeClock, username string) (*Setup, []string) {
	t.Helper()
	ctx := context.Background()
	setup, err := m.Setup(ctx, username)
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(setup.BackupCodes))
	}
	key, err := otp.DecodeSecret(setup.Secret)
	if err != nil {
		t.Fatalf("DecodeSecret error: %v", err)
	}
	code, err := om.Code(key, clock.Now())
	if err != nil {
		t.Fatalf("Code error: %v", err)
	}
	ok, err := m.Enable(ctx, username, setup.Secret, code, setup.BackupCodes)
	if err != nil || !ok {
		t.Fatalf("Enable ok=%v err=%v", ok, err)
	}
	return setup, setup.BackupCodes
}

func currentCode(t *testing.T, om *otp.Manager, secret string, clock *fakeClock) string {
	t.Helper()
	key, err := otp.DecodeSecret(secret)
	if err != nil {
		t.Fatalf("DecodeSecret error: %v", err)
	}
	code, err := om.Code(key, clock.Now())
	if err != nil {
		t.Fatalf("Code error: %v", err)
	}
	return code
}

func TestSetupDoesNotPersist(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Setup(ctx, "alice"); err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	enabled, err := m.Enabled(ctx, "alice")
	if err != nil || enabled {
		t.Fatalf("expected disabled after setup, enabled=%v err=%v", enabled, err)
	}
	// 2FA is opt-in: unconfirmed setup must not gate login.
	if ok, err := m.VerifyLogin(ctx, "alice", "000000"); err != nil || !ok {
		t.Fatalf("expected pass-through login, ok=%v err=%v", ok, err)
	}
}

func TestEnableRequiresCorrectCode(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	setup, err := m.Setup(ctx, "alice")
	if err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	ok, err := m.Enable(ctx, "alice", setup.Secret, "000000", setup.BackupCodes)
	if err != nil {
		t.Fatalf("Enable error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong code to be rejected")
	}
	if enabled, _ := m.Enabled(ctx, "alice"); enabled {
		t.Fatal("failed enable must persist nothing")
	}
}

func TestVerifyLoginGate(t *testing.T) {
	m, om, clock, _ := newTestManager(t)
	ctx := context.Background()
	setup, _ := enroll(t, m, om, clock, "alice")

	if enabled, _ := m.Enabled(ctx, "alice"); !enabled {
		t.Fatal("expected enabled after confirmed enroll")
	}
	if ok, _ := m.VerifyLogin(ctx, "alice", "000000"); ok {
		t.Fatal("expected wrong code to be rejected")
	}

	// Same time step as Enable: replay of the enrollment code is refused,
	// the next step is accepted.
	if ok, _ := m.VerifyLogin(ctx, "alice", currentCode(t, om, setup.Secret, clock)); ok {
		t.Fatal("expected enrollment-step replay to be rejected")
	}
	clock.Advance(30 * time.Second)
	if ok, err := m.VerifyLogin(ctx, "alice", currentCode(t, om, setup.Secret, clock)); err != nil || !ok {
		t.Fatalf("expected current code to pass, ok=%v err=%v", ok, err)
	}
}

func TestBackupCodeSingleUse(t *testing.T) {
	m, om, clock, _ := newTestManager(t)
	ctx := context.Background()
	_, codes := enroll(t, m, om, clock, "alice")

	if ok, err := m.VerifyLogin(ctx, "alice", codes[0]); err != nil || !ok {
		t.Fatalf("expected backup code to pass, ok=%v err=%v", ok, err)
	}
	if ok, _ := m.VerifyLogin(ctx, "alice", codes[0]); ok {
		t.Fatal("expected consumed backup code to fail")
	}
	if ok, err := m.VerifyLogin(ctx, "alice", codes[1]); err != nil || !ok {
		t.Fatalf("expected a different backup code to still pass, ok=%v err=%v", ok, err)
	}
}

func TestDisableRequiresCode(t *testing.T) {
	m, om, clock, _ := newTestManager(t)
	ctx := context.Background()
	setup, codes := enroll(t, m, om, clock, "alice")

	if ok, _ := m.Disable(ctx, "alice", "000000"); ok {
		t.Fatal("expected wrong code to leave 2FA on")
	}
	if enabled, _ := m.Enabled(ctx, "alice"); !enabled {
		t.Fatal("expected still enabled")
	}

	if ok, err := m.Disable(ctx, "alice", codes[0]); err != nil || !ok {
		t.Fatalf("expected backup code to disable, ok=%v err=%v", ok, err)
	}
	if enabled, _ := m.Enabled(ctx, "alice"); enabled {
		t.Fatal("expected disabled")
	}
	if ok, err := m.VerifyLogin(ctx, "alice", currentCode(t, om, setup.Secret, clock)); err != nil || !ok {
		t.Fatalf("expected pass-through after disable, ok=%v err=%v", ok, err)
	}
	if _, err := m.Disable(ctx, "alice", codes[1]); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
}

func TestSetupRejectsWhenAlreadyEnabled(t *testing.T) {
	m, om, clock, _ := newTestManager(t)
	enroll(t, m, om, clock, "alice")

	if _, err := m.Setup(context.Background(), "alice"); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
}

func TestEnableRefusesToReplaceActiveFactor(t *testing.T) {
	m, om, clock, _ := newTestManager(t)
	ctx := context.Background()
	setup, _ := enroll(t, m, om, clock, "alice")

	// A caller holding a session but not the current factor must not be
	// able to swap in a secret of its own choosing.
	_, fresh, err := om.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret error: %v", err)
	}
	code := currentCode(t, om, fresh, clock)
	if ok, err := m.Enable(ctx, "alice", fresh, code, []string{"abc"}); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, ok=%v err=%v", ok, err)
	}

	// The original secret still gates the login.
	clock.Advance(30 * time.Second)
	if ok, err := m.VerifyLogin(ctx, "alice", currentCode(t, om, setup.Secret, clock)); err != nil || !ok {
		t.Fatalf("expected original factor to survive, ok=%v err=%v", ok, err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	m, om, clock, _ := newTestManager(t)
	ctx := context.Background()
	setup, old := enroll(t, m, om, clock, "alice")

	// Backup codes cannot mint replacements.
	if codes, err := m.RegenerateBackupCodes(ctx, "alice", old[0]); err != nil || codes != nil {
		t.Fatalf("expected backup code rejected, codes=%v err=%v", codes, err)
	}

	clock.Advance(30 * time.Second)
	fresh, err := m.RegenerateBackupCodes(ctx, "alice", currentCode(t, om, setup.Secret, clock))
	if err != nil || len(fresh) != 10 {
		t.Fatalf("expected 10 fresh codes, got %d err=%v", len(fresh), err)
	}

	if ok, _ := m.VerifyLogin(ctx, "alice", old[1]); ok {
		t.Fatal("expected old backup code to be invalid after regeneration")
	}
	if ok, err := m.VerifyLogin(ctx, "alice", fresh[0]); err != nil || !ok {
		t.Fatalf("expected fresh backup code to pass, ok=%v err=%v", ok, err)
	}
}

func TestLoadFallsBackToRemoteColumns(t *testing.T) {
	m, om, clock, remote := newTestManager(t)
	ctx := context.Background()

	// The Update in save patches the user's credential row; seed one.
	err := remote.Insert(ctx, storage.TableCredentials, storage.Row{
		"username": "alice", "email": "alice@x.com",
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	setup, _ := enroll(t, m, om, clock, "alice")

	// Fresh cache, same remote: a new device sees the enabled record.
	m2 := New(storage.NewMemoryCache(), remote, om, nil, clock.Now)
	rows, err := remote.Query(ctx, storage.TableCredentials, storage.Filter{"username": "alice"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected persisted remote columns, rows=%d err=%v", len(rows), err)
	}
	if enabled, err := m2.Enabled(ctx, "alice"); err != nil || !enabled {
		t.Fatalf("expected remote-backed enabled, enabled=%v err=%v", enabled, err)
	}
	clock.Advance(30 * time.Second)
	if ok, err := m2.VerifyLogin(ctx, "alice", currentCode(t, om, setup.Secret, clock)); err != nil || !ok {
		t.Fatalf("expected remote-backed verify, ok=%v err=%v", ok, err)
	}
}
