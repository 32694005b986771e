package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeMailer struct {
	mu        sync.Mutex
	available bool
	err       error
	sent      []Message
}

func (f *fakeMailer) Available() bool { return f.available }

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type staticAdmins struct {
	users []*models.User
	err   error
}

func (s staticAdmins) ActiveAdmins(context.Context) ([]*models.User, error) { return s.users, s.err }

func sampleView() report.View {
	return report.View{
		Report: report.Report{
			ID:          primitive.NewObjectID(),
			Title:       "Pothole <b>on</b> Main",
			Description: "Large pothole",
			Category:    report.CategoryInfrastructure,
			Priority:    report.PriorityMedium,
			Status:      report.StatusOpen,
			Location:    report.Location{Address: "Main St"},
		},
		CreatedBy: &models.UserSummary{ID: primitive.NewObjectID(), Username: "resident", Email: "resident@community.com"},
	}
}

func TestNotifyReportCreatedSendsToAdmins(t *testing.T) {
	m := &fakeMailer{available: true}
	admins := staticAdmins{users: []*models.User{{Email: "a1@community.com"}, {Email: "a2@community.com"}}}
	d := NewDispatcher(m, admins, "http://client")
	v := sampleView()

	res := d.NotifyReportCreated(context.Background(), v)
	require.True(t, res.Sent)
	require.Equal(t, []string{"a1@community.com", "a2@community.com"}, res.Recipients)
	require.Len(t, m.sent, 1)
	msg := m.sent[0]
	require.Equal(t, "New Report: "+v.Title, msg.Subject)
	require.Contains(t, msg.HTML, "http://client/reports/"+v.ID.Hex())
	require.Contains(t, msg.HTML, "Pothole &lt;b&gt;on&lt;/b&gt; Main")
}

func TestNotifyReportCreatedWithoutAdminsIsNoop(t *testing.T) {
	m := &fakeMailer{available: true}
	d := NewDispatcher(m, staticAdmins{}, "http://client")
	res := d.NotifyReportCreated(context.Background(), sampleView())
	require.True(t, res.Skipped)
	require.NoError(t, res.Err)
	require.Empty(t, m.sent)
}

func TestNotifyStatusChanged(t *testing.T) {
	m := &fakeMailer{available: true}
	d := NewDispatcher(m, staticAdmins{}, "http://client")
	v := sampleView()
	v.Status = report.StatusResolved
	v.AssignedTo = &models.UserSummary{Username: "crew"}

	results := d.NotifyStatusChanged(context.Background(), v, report.StatusInProgress, report.StatusResolved)
	require.Len(t, results, 2)
	require.Equal(t, KindStatusUpdate, results[0].Kind)
	require.Equal(t, KindReportResolved, results[1].Kind)
	require.Len(t, m.sent, 2)
	require.Equal(t, []string{"resident@community.com"}, m.sent[0].To)
	require.Contains(t, m.sent[0].HTML, "In Progress")
	require.Contains(t, m.sent[0].HTML, "Assigned to: crew")
	require.True(t, strings.HasPrefix(m.sent[1].Subject, "Report Resolved: "))

	m.sent = nil
	results = d.NotifyStatusChanged(context.Background(), v, report.StatusOpen, report.StatusInProgress)
	require.Len(t, results, 1)
	require.Len(t, m.sent, 1)

	require.Nil(t, d.NotifyStatusChanged(context.Background(), v, report.StatusOpen, report.StatusOpen))
}

func TestUnavailableOrFailingMailerSimulates(t *testing.T) {
	before := testutil.ToFloat64(metrics.Notifications.WithLabelValues(KindStatusUpdate, "simulated"))

	d := NewDispatcher(nil, staticAdmins{}, "http://client")
	results := d.NotifyStatusChanged(context.Background(), sampleView(), report.StatusOpen, report.StatusInProgress)
	require.True(t, results[0].Simulated)
	require.NoError(t, results[0].Err)

	failing := &fakeMailer{available: true, err: errors.New("relay down")}
	d = NewDispatcher(failing, staticAdmins{}, "http://client")
	results = d.NotifyStatusChanged(context.Background(), sampleView(), report.StatusOpen, report.StatusInProgress)
	require.True(t, results[0].Simulated)
	require.Error(t, results[0].Err)

	after := testutil.ToFloat64(metrics.Notifications.WithLabelValues(KindStatusUpdate, "simulated"))
	require.Equal(t, before+2, after)
}

func TestAsyncDispatchCompletesOnWait(t *testing.T) {
	m := &fakeMailer{available: true}
	admins := staticAdmins{users: []*models.User{{Email: "a@community.com"}}}
	d := NewDispatcher(m, admins, "http://client")
	v := sampleView()

	d.ReportCreated(v)
	d.StatusChanged(v, report.StatusOpen, report.StatusResolved)
	d.StatusChanged(v, report.StatusOpen, report.StatusOpen)
	d.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.sent, 3)
}
