package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/proride-store/internal/order"
	"github.com/noah-isme/proride-store/internal/pricing"
)

// TypeReceiptEmail is the asynq task type for paid-order receipts.
const TypeReceiptEmail = "receipt:email"

// QueueMail is the asynq queue receipts are published to.
const QueueMail = "mail"

// ReceiptPayload is the task body carried from the API to the worker.
type ReceiptPayload struct {
	OrderID      string        `json:"order_id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	ItemsSummary string        `json:"items_summary"`
	Subtotal     pricing.Money `json:"subtotal"`
	Shipping     pricing.Money `json:"shipping"`
	Discount     pricing.Money `json:"discount"`
	Total        pricing.Money `json:"total"`
	CourierName  string        `json:"courier_name"`
	Gifts        []string      `json:"gifts"`
	BillCode     string        `json:"bill_code"`
}

// PayloadFor extracts the receipt fields of a paid order.
func PayloadFor(o order.Order) ReceiptPayload {
	return ReceiptPayload{
		OrderID:      o.ID,
		Email:        o.Customer.Email,
		Name:         o.Customer.Name,
		ItemsSummary: o.ItemsSummary,
		Subtotal:     o.Subtotal,
		Shipping:     o.Shipping,
		Discount:     o.Discount,
		Total:        o.Total,
		CourierName:  o.CourierName,
		Gifts:        o.GiftNames(),
		BillCode:     o.BillCode,
	}
}

// NewReceiptTask encodes a receipt task. Tasks are not retried and are
// deduplicated per order so a replayed settlement cannot mail twice.
func NewReceiptTask(p ReceiptPayload) (*asynq.Task, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, errors.New("receipt: order id is required")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReceiptEmail, body,
		asynq.Queue(QueueMail),
		asynq.MaxRetry(0),
		asynq.TaskID("receipt:"+p.OrderID),
		asynq.Retention(24*time.Hour),
	), nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes receipt tasks when an order is settled.
type Enqueuer struct {
	Client  TaskEnqueuer
	Enabled bool
	Logger  zerolog.Logger
}

// NotifyPaid enqueues the receipt email for o. Orders without an email
// address and a disabled enqueuer are skipped silently.
func (e Enqueuer) NotifyPaid(ctx context.Context, o order.Order) error {
	if !e.Enabled || e.Client == nil {
		return nil
	}
	if strings.TrimSpace(o.Customer.Email) == "" {
		return nil
	}
	task, err := NewReceiptTask(PayloadFor(o))
	if err != nil {
		return err
	}
	info, err := e.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue receipt: %w", err)
	}
	e.Logger.Debug().Str("order_id", o.ID).Str("task_id", info.ID).Msg("receipt queued")
	return nil
}

// ReceiptSubject returns the email subject for an order.
func ReceiptSubject(orderID string) string {
	return "Proride receipt - Order #" + orderID
}

// ReceiptBody renders the HTML receipt.
func ReceiptBody(p ReceiptPayload) string {
	var b strings.Builder
	b.WriteString("<p>Thank you for your purchase")
	if name := strings.TrimSpace(p.Name); name != "" {
		b.WriteString(", ")
		b.WriteString(html.EscapeString(name))
	}
	b.WriteString("!</p>")
	fmt.Fprintf(&b, "<p>Order #%s<br>Bill code: %s</p>", html.EscapeString(p.OrderID), html.EscapeString(p.BillCode))
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(p.ItemsSummary))
	b.WriteString("<table>")
	row := func(label string, amount pricing.Money) {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", label, pricing.FormatMoney(amount))
	}
	row("Subtotal", p.Subtotal)
	row("Shipping ("+html.EscapeString(p.CourierName)+")", p.Shipping)
	if p.Discount > 0 {
		row("Discount", -p.Discount)
	}
	row("Total", p.Total)
	b.WriteString("</table>")
	if len(p.Gifts) > 0 {
		b.WriteString("<p>Free gifts:</p><ul>")
		for _, g := range p.Gifts {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(g))
		}
		b.WriteString("</ul>")
	}
	return b.String()
}
