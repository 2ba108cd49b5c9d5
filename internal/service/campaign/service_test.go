package campaign_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dm-dispatch/internal/domain"
	"github.com/ignite/dm-dispatch/internal/repository/memory"
	"github.com/ignite/dm-dispatch/internal/service/campaign"
)

var clock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newStore() *memory.Store {
	store := memory.New()
	store.PutAccount(domain.Account{ID: "acct-1", WorkspaceID: "ws-1", PlatformUserID: "ig-sender", DailyLimit: 40})
	store.PutAccount(domain.Account{ID: "acct-9", WorkspaceID: "ws-2", PlatformUserID: "ig-elsewhere", DailyLimit: 40})
	return store
}

func newService() (*campaign.Service, *memory.Store) {
	store := newStore()
	svc := campaign.NewService(store, store).WithClock(func() time.Time { return clock })
	return svc, store
}

func validInput() campaign.CreateInput {
	return campaign.CreateInput{
		Name: "Spring outreach",
		Steps: []campaign.StepInput{
			{Order: 2, Variants: []string{"Following up, {{name}}"}, DelayDays: 2},
			{Order: 1, Variants: []string{"Hi {{name}}", "Hey {name}"}, DelayMinutes: 5},
		},
		Recipients: []campaign.RecipientInput{
			{AccountID: "acct-1", PlatformUserID: "ig-1", Username: "@jane", FullName: "Jane Doe"},
			{AccountID: "acct-1", PlatformUserID: "ig-2", Username: "john"},
		},
	}
}

func TestCreate(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	d, err := svc.Create(ctx, "ws-1", validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.CampaignDraft, d.Status)
	assert.Equal(t, 2, d.TotalRecipients)
	assert.Equal(t, 2, d.Stats.Pending)
	require.Len(t, d.Steps, 2)
	assert.Equal(t, 1, d.Steps[0].Order, "steps are sorted by order")

	rs := store.RecipientsOf(d.ID)
	require.Len(t, rs, 2)
	assert.Equal(t, "jane", rs[0].Username, "leading @ is stripped")
	assert.True(t, rs[0].CreatedAt.Before(rs[1].CreatedAt), "input order is kept")
	for _, r := range rs {
		assert.Nil(t, r.NextActionAt)
		assert.Equal(t, 0, r.CurrentStepOrder)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	cases := map[string]func(*campaign.CreateInput){
		"empty name":    func(in *campaign.CreateInput) { in.Name = "  " },
		"no recipients": func(in *campaign.CreateInput) { in.Recipients = nil },
		"no steps":      func(in *campaign.CreateInput) { in.Steps = nil },
		"gap in orders": func(in *campaign.CreateInput) { in.Steps[0].Order = 3 },
		"empty variant": func(in *campaign.CreateInput) { in.Steps[1].Variants = []string{""} },
		"no account":    func(in *campaign.CreateInput) { in.Recipients[0].AccountID = "" },
		"no identity": func(in *campaign.CreateInput) {
			in.Recipients[0].PlatformUserID = ""
			in.Recipients[0].Username = ""
		},
		"duplicate recipient": func(in *campaign.CreateInput) { in.Recipients[1] = in.Recipients[0] },
		"bad window": func(in *campaign.CreateInput) {
			in.SendWindow = domain.SendWindow{StartTime: "25:00", EndTime: "10:00"}
		},
		"bad timezone": func(in *campaign.CreateInput) {
			in.SendWindow = domain.SendWindow{StartTime: "09:00", EndTime: "17:00", Timezone: "Mars/Base"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			_, err := svc.Create(ctx, "ws-1", in)
			assert.ErrorIs(t, err, campaign.ErrValidation)
		})
	}
}

func TestStart_SchedulesFirstStep(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	d, err := svc.Create(ctx, "ws-1", validInput())
	require.NoError(t, err)

	c, err := svc.Start(ctx, "ws-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignRunning, c.Status)
	require.NotNil(t, c.StartedAt)

	for _, r := range store.RecipientsOf(d.ID) {
		require.NotNil(t, r.NextActionAt)
		assert.Equal(t, clock.Add(5*time.Minute), *r.NextActionAt)
	}

	_, err = svc.Start(ctx, "ws-1", d.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition)
}

func TestPauseResume(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	d, err := svc.Create(ctx, "ws-1", validInput())
	require.NoError(t, err)

	_, err = svc.Pause(ctx, "ws-1", d.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition, "draft cannot be paused")

	_, err = svc.Start(ctx, "ws-1", d.ID)
	require.NoError(t, err)

	c, err := svc.Pause(ctx, "ws-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignPaused, c.Status)

	c, err = svc.Start(ctx, "ws-1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignRunning, c.Status, "starting a paused campaign resumes it")

	_, err = svc.Resume(ctx, "ws-1", d.ID)
	assert.ErrorIs(t, err, campaign.ErrInvalidTransition)
}

func TestWorkspaceIsolation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	d, err := svc.Create(ctx, "ws-1", validInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, "ws-2", d.ID)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
	_, err = svc.Start(ctx, "ws-2", d.ID)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
	_, err = svc.Pause(ctx, "ws-2", d.ID)
	assert.ErrorIs(t, err, campaign.ErrNotFound)
}

func TestCreate_RejectsAccountsOutsideWorkspace(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	for _, acct := range []string{"acct-9", "acct-missing"} {
		in := validInput()
		in.Recipients[1].AccountID = acct
		_, err := svc.Create(ctx, "ws-1", in)
		assert.ErrorIs(t, err, campaign.ErrValidation, acct)
		assert.ErrorContains(t, err, acct)
	}

	_, total, err := store.List(ctx, "ws-1", campaign.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "nothing is persisted")

	_, err = svc.Create(ctx, "ws-2", validInput())
	assert.ErrorIs(t, err, campaign.ErrValidation, "acct-1 belongs to ws-1")
}

func TestGetAndList(t *testing.T) {
	now := clock
	store := newStore()
	svc := campaign.NewService(store, store).WithClock(func() time.Time { return now })
	ctx := context.Background()

	first, err := svc.Create(ctx, "ws-1", validInput())
	require.NoError(t, err)
	now = now.Add(time.Minute)
	second, err := svc.Create(ctx, "ws-1", validInput())
	require.NoError(t, err)
	_, err = svc.Start(ctx, "ws-1", second.ID)
	require.NoError(t, err)

	d, err := svc.Get(ctx, "ws-1", first.ID)
	require.NoError(t, err)
	assert.Len(t, d.Steps, 2)
	assert.Equal(t, 2, d.Stats.Pending)

	all, total, err := svc.List(ctx, "ws-1", campaign.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	running, total, err := svc.List(ctx, "ws-1", campaign.ListFilter{Status: "RUNNING"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, running, 1)
	assert.Equal(t, second.ID, running[0].ID)

	page, _, err := svc.List(ctx, "ws-1", campaign.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)
}
