package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"face-attendance-backend/internal/attendance"
	"face-attendance-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Subscriptions is the subscription storage the workers read and prune.
type Subscriptions interface {
	SubscriptionsFor(ctx context.Context, empID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// WorkerPool announces attendance transitions to the subscriptions that follow
// the employee.
type WorkerPool struct {
	size     int
	jobs     chan attendance.Transition
	subs     Subscriptions
	webpush  *webpush.Options
	sender   NotificationSender
	location *time.Location
}

// NewWorkerPool creates a new worker pool. Times in messages are shown in loc.
func NewWorkerPool(size int, subs Subscriptions, webpushOptions *webpush.Options, loc *time.Location) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if loc == nil {
		loc = time.Local
	}
	return &WorkerPool{
		size:     size,
		jobs:     make(chan attendance.Transition, size*16),
		subs:     subs,
		webpush:  webpushOptions,
		sender:   &WebPushSender{},
		location: loc,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Worker %d started", id)
	for {
		select {
		case t := <-wp.jobs:
			wp.sendNotificationsFor(ctx, t)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Notify queues t for delivery. When the queue is full the event is dropped so
// that check-ins never wait on push delivery.
func (wp *WorkerPool) Notify(t attendance.Transition) {
	select {
	case wp.jobs <- t:
	default:
		log.Printf("Notification queue full; dropping event for %s", t.Record().EmpID)
	}
}

// Message renders the push payload for t.
func (wp *WorkerPool) Message(t attendance.Transition) string {
	switch t := t.(type) {
	case attendance.CheckIn:
		return fmt.Sprintf("%s checked in at %s (%s)",
			t.Open.EmployeeName, t.Open.CheckIn.In(wp.location).Format("15:04"), t.Open.Status)
	case attendance.CheckOut:
		return fmt.Sprintf("%s checked out at %s (%.2f h)",
			t.Closed.EmployeeName, t.Closed.CheckOut.In(wp.location).Format("15:04"), t.Closed.TotalWorkingHours)
	default:
		return ""
	}
}

func (wp *WorkerPool) sendNotificationsFor(ctx context.Context, t attendance.Transition) {
	empID := t.Record().EmpID
	subscriptions, err := wp.subs.SubscriptionsFor(ctx, empID)
	if err != nil {
		log.Printf("Error fetching subscriptions for employee %s: %v", empID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d notifications for employee %s", len(subscriptions), empID)
	payload := []byte(wp.Message(t))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
