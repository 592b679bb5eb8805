package renewal

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/notify"
	"github.com/uzx-v/renewbot/lib/proxy"
	"github.com/uzx-v/renewbot/lib/renew"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/renewstore/db"
	"github.com/uzx-v/renewbot/lib/testutil"
	"github.com/uzx-v/renewbot/lib/timezone"
)

type fakeProvider struct {
	name string
	// outcomes per call, the last entry repeats
	calls    int
	outcomes [][]renew.Outcome
	err      error
}

func (p *fakeProvider) Name() string {
	return p.name
}

func (p *fakeProvider) Renew(ctx context.Context, newSession browser.Factory, params renew.Params) ([]renew.Outcome, error) {
	idx := p.calls
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if idx >= len(p.outcomes) {
		idx = len(p.outcomes) - 1
	}
	return p.outcomes[idx], nil
}

type recordingNotifier struct {
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.events = append(n.events, event)
	return nil
}

func setupService(t *testing.T, providers ...Registration) (Service, *recordingNotifier, renewstore.Store, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/renewal",
		DbSchema: db.Schema,
	})
	store := renewstore.NewStore(setup.DB)
	notifier := &recordingNotifier{}
	service := NewService(Options{
		Providers: providers,
		Chain:     proxy.NewChain(""),
		Store:     store,
		Notifier:  notifier,
	})
	return service, notifier, store, cleanup
}

func TestRunProviderRecordsAndNotifies(t *testing.T) {
	expires := timezone.Now().Add(time.Hour * 24 * 30)
	provider := &fakeProvider{
		name: "fakehost",
		outcomes: [][]renew.Outcome{{
			{Target: "srv-1", Status: renew.StatusRenewed, ExpiresAt: expires, DaysLeft: 30},
		}},
	}
	service, notifier, store, cleanup := setupService(t, Registration{Provider: provider})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)

	attempts, err := store.ListAttempts(ctx, "fakehost", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "renewed", attempts[0].Status)
	require.Equal(t, "srv-1", attempts[0].Target)

	require.Len(t, notifier.events, 1)
	require.Equal(t, "fakehost", notifier.events[0].Provider)
	require.Equal(t, "renewed", notifier.events[0].Subject)
	require.Contains(t, notifier.events[0].Message, "Expires")
}

func TestRunProviderErrorStillRecords(t *testing.T) {
	provider := &fakeProvider{
		name: "fakehost",
		err:  fmt.Errorf("browser crashed"),
	}
	service, notifier, store, cleanup := setupService(t, Registration{Provider: provider})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.RunAll(ctx)
	require.ErrorContains(t, err, "browser crashed")

	attempts, err := store.ListAttempts(ctx, "fakehost", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "failed", attempts[0].Status)

	require.Len(t, notifier.events, 1)
	require.Equal(t, "renewal failed", notifier.events[0].Subject)
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: fmt.Errorf("boom")}
	healthy := &fakeProvider{
		name: "healthy",
		outcomes: [][]renew.Outcome{{
			{Target: "srv", Status: renew.StatusSkipped, Detail: "10 days left"},
		}},
	}
	service, notifier, _, cleanup := setupService(
		t,
		Registration{Provider: broken},
		Registration{Provider: healthy},
	)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.RunAll(ctx)
	require.ErrorContains(t, err, "broken")
	require.Equal(t, 1, healthy.calls)
	require.Len(t, notifier.events, 2)
}

type fakeProber struct {
	fakeProvider
	probeTarget  string
	probeExpires time.Time
	probeErr     error
}

func (p *fakeProber) Probe(ctx context.Context) (string, time.Time, error) {
	return p.probeTarget, p.probeExpires, p.probeErr
}

func TestRunProviderProbeSkipsBrowser(t *testing.T) {
	provider := &fakeProber{
		fakeProvider: fakeProvider{name: "fakehost"},
		probeTarget:  "srv-1",
		probeExpires: timezone.Now().Add(time.Hour * 24 * 30),
	}
	service, notifier, store, cleanup := setupService(t, Registration{Provider: provider})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, provider.calls)

	attempts, err := store.ListAttempts(ctx, "fakehost", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.Equal(t, "skipped", attempts[0].Status)
	require.Equal(t, "srv-1", attempts[0].Target)

	require.Len(t, notifier.events, 1)
	require.Equal(t, "no renewal needed", notifier.events[0].Subject)
}

func TestRunProviderProbeErrorFallsBack(t *testing.T) {
	provider := &fakeProber{
		fakeProvider: fakeProvider{
			name: "fakehost",
			outcomes: [][]renew.Outcome{{
				{Target: "srv-1", Status: renew.StatusRenewed},
			}},
		},
		probeErr: fmt.Errorf("connection refused"),
	}
	service, _, _, cleanup := setupService(t, Registration{Provider: provider})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.RunAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, provider.calls)
}

func TestRunProviderCombinesMultiServerNotification(t *testing.T) {
	provider := &fakeProvider{
		name: "fakehost",
		outcomes: [][]renew.Outcome{{
			{Target: "srv-1", Status: renew.StatusRenewed},
			{Target: "srv-2", Status: renew.StatusFailed, Detail: "button missing"},
		}},
	}
	service, notifier, store, cleanup := setupService(t, Registration{Provider: provider})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := service.RunAll(ctx)
	require.ErrorContains(t, err, "srv-2")

	attempts, err := store.ListAttempts(ctx, "fakehost", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	require.Len(t, notifier.events, 1)
	require.Contains(t, notifier.events[0].Subject, "some failed")
	require.Contains(t, notifier.events[0].Message, "srv-1: renewed")
	require.Contains(t, notifier.events[0].Message, "srv-2: failed (button missing)")
}

func TestCombinedEventStatus(t *testing.T) {
	skipped := renew.Outcome{Target: "a", Status: renew.StatusSkipped}
	cooldown := renew.Outcome{Target: "b", Status: renew.StatusCooldown}
	renewed := renew.Outcome{Target: "c", Status: renew.StatusRenewed}
	failed := renew.Outcome{Target: "d", Status: renew.StatusFailed}

	event := combinedEvent("fakehost", []renew.Outcome{skipped, cooldown})
	require.Equal(t, "skipped", event.Status)
	require.Equal(t, "2 servers processed", event.Subject)

	event = combinedEvent("fakehost", []renew.Outcome{skipped, renewed})
	require.Equal(t, "renewed", event.Status)

	event = combinedEvent("fakehost", []renew.Outcome{renewed, failed})
	require.Equal(t, "failed", event.Status)
	require.Contains(t, event.Subject, "some failed")
}

func TestFinalizeSavesScreenshot(t *testing.T) {
	provider := &fakeProvider{name: "fakehost"}
	service, _, _, cleanup := setupService(t, Registration{Provider: provider})
	defer cleanup()
	dir := t.TempDir()
	service.opts.ScreenshotDir = dir

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	// renewed runs carry a result screenshot too, not just failures
	service.finalize(ctx, Registration{Provider: provider}, []renew.Outcome{
		{
			Target:     "srv 1",
			Status:     renew.StatusFailed,
			Screenshot: []byte("png bytes"),
		},
		{
			Target:     "srv-2",
			Status:     renew.StatusRenewed,
			Screenshot: []byte("more png bytes"),
		},
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	require.Contains(t, strings.Join(names, " "), "fakehost-srv_1-")
	require.Contains(t, strings.Join(names, " "), "fakehost-srv-2-")
}

func TestRoutesForProxyOnly(t *testing.T) {
	service := NewService(Options{
		Chain: proxy.NewChain("vless://8c4a9e1e-3c55-4d1a-9a19-0d7a5e2b9f13@example.com:443?security=reality&sni=cdn.example.com&pbk=key&sid=aa11"),
	})

	routes := service.routesFor(Registration{})
	require.Equal(t, []string{"direct", "proxy"}, routes)

	routes = service.routesFor(Registration{ProxyOnly: true})
	require.Equal(t, []string{"proxy"}, routes)

	// without a proxy configured, direct is all there is
	service = NewService(Options{Chain: proxy.NewChain("")})
	routes = service.routesFor(Registration{ProxyOnly: true})
	require.Equal(t, []string{"direct"}, routes)
}
