// Package notify emails residents and administrators about report lifecycle
// events. Delivery never affects the request that triggered it: when the mail
// channel is unavailable or a send fails, the result is marked simulated and
// logged.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/metrics"
)

const DefaultTimeout = 30 * time.Second

// AdminSource lists the administrators to tell about new reports.
type AdminSource interface {
	ActiveAdmins(ctx context.Context) ([]*models.User, error)
}

// Result describes one notification attempt.
type Result struct {
	Kind       string
	Recipients []string
	Sent       bool
	Simulated  bool
	Skipped    bool
	Err        error
}

type Dispatcher struct {
	mailer    Mailer
	admins    AdminSource
	clientURL string
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher wires the mail channel. mailer may be nil, in which case
// every notification is simulated.
func NewDispatcher(mailer Mailer, admins AdminSource, clientURL string) *Dispatcher {
	return &Dispatcher{mailer: mailer, admins: admins, clientURL: clientURL, timeout: DefaultTimeout}
}

// ReportCreated notifies admins in the background.
func (d *Dispatcher) ReportCreated(v report.View) {
	d.detach(func(ctx context.Context) { d.NotifyReportCreated(ctx, v) })
}

// StatusChanged notifies the reporter in the background.
func (d *Dispatcher) StatusChanged(v report.View, from, to report.Status) {
	d.detach(func(ctx context.Context) { d.NotifyStatusChanged(ctx, v, from, to) })
}

// Wait blocks until background notifications have finished. Used on
// shutdown and in tests.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) detach(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("notification panic: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (d *Dispatcher) NotifyReportCreated(ctx context.Context, v report.View) Result {
	admins, err := d.admins.ActiveAdmins(ctx)
	if err != nil {
		logger.Errorf("load admins for report %s: %v", v.ID.Hex(), err)
		return d.skip(KindNewReport, err)
	}
	var to []string
	for _, a := range admins {
		if a.Email != "" {
			to = append(to, a.Email)
		}
	}
	if len(to) == 0 {
		logger.Infof("no active admins to notify about report %s", v.ID.Hex())
		return d.skip(KindNewReport, nil)
	}
	data := d.data(v)
	return d.send(ctx, KindNewReport, to, "New Report: "+v.Title, data)
}

// NotifyStatusChanged sends the status update and, for a move to Resolved,
// the resolution notice. Nothing is sent when from equals to.
func (d *Dispatcher) NotifyStatusChanged(ctx context.Context, v report.View, from, to report.Status) []Result {
	if from == to {
		return nil
	}
	if v.CreatedBy == nil || v.CreatedBy.Email == "" {
		logger.Warnf("report %s has no reporter email; status change not sent", v.ID.Hex())
		return []Result{d.skip(KindStatusUpdate, nil)}
	}
	rcpt := []string{v.CreatedBy.Email}
	data := d.data(v)
	data.OldStatus = string(from)
	data.NewStatus = string(to)

	results := []Result{d.send(ctx, KindStatusUpdate, rcpt, "Report Update: "+v.Title, data)}
	if to == report.StatusResolved {
		results = append(results, d.send(ctx, KindReportResolved, rcpt, "Report Resolved: "+v.Title, data))
	}
	return results
}

func (d *Dispatcher) data(v report.View) emailData {
	data := emailData{
		Title:       v.Title,
		Description: v.Description,
		Category:    string(v.Category),
		Priority:    string(v.Priority),
		Address:     v.Location.Address,
		Link:        d.clientURL + "/reports/" + v.ID.Hex(),
	}
	if v.CreatedBy != nil {
		data.Reporter = v.CreatedBy.Username
	}
	if v.AssignedTo != nil {
		data.Assignee = v.AssignedTo.Username
	}
	return data
}

func (d *Dispatcher) send(ctx context.Context, kind string, to []string, subject string, data emailData) Result {
	res := Result{Kind: kind, Recipients: to}
	body, err := render(kind, data)
	if err != nil {
		logger.Errorf("render %s: %v", kind, err)
		res.Skipped, res.Err = true, err
		metrics.Notifications.WithLabelValues(kind, "skipped").Inc()
		return res
	}
	if d.mailer == nil || !d.mailer.Available() {
		logger.Infof("[simulated] %s to %v: %s", kind, to, subject)
		res.Simulated = true
		metrics.Notifications.WithLabelValues(kind, "simulated").Inc()
		return res
	}
	if err := d.mailer.Send(ctx, Message{To: to, Subject: subject, HTML: body}); err != nil {
		logger.Warnf("%s to %v failed, treating as simulated: %v", kind, to, err)
		res.Simulated, res.Err = true, err
		metrics.Notifications.WithLabelValues(kind, "simulated").Inc()
		return res
	}
	logger.Infof("%s sent to %v", kind, to)
	res.Sent = true
	metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	return res
}

func (d *Dispatcher) skip(kind string, err error) Result {
	metrics.Notifications.WithLabelValues(kind, "skipped").Inc()
	return Result{Kind: kind, Skipped: true, Err: err}
}
