package bot

import (
	"context"

	"github.com/fiberline/opsbot/internal/backend"
)

// API is the subset of the operations API the flows call.
// *backend.Client implements it.
type API interface {
	Options(ctx context.Context) (*backend.Options, error)
	DetectDevices(ctx context.Context, olt string) ([]backend.Device, error)
	Configure(ctx context.Context, olt string, req backend.ConfigureRequest) (string, error)
	ProvisioningList(ctx context.Context) ([]backend.Customer, error)
	SearchCustomers(ctx context.Context, query string) ([]backend.Customer, error)
	Billing(ctx context.Context, query string) ([]backend.BillingRecord, error)

	Status(ctx context.Context, olt, iface string) (string, error)
	Signal(ctx context.Context, olt, iface string) (string, error)
	PortState(ctx context.Context, olt, iface string) (string, error)
	Reboot(ctx context.Context, olt, iface string) (string, error)
	Remove(ctx context.Context, olt, iface string) (string, error)
	Bandwidth(ctx context.Context, olt, iface string) (string, error)
	RunningConfig(ctx context.Context, olt, iface string) (string, error)
	EthStatus(ctx context.Context, olt, iface string) (string, error)
	LockPorts(ctx context.Context, olt, iface string, unlocked bool) (string, error)
	ChangeCapacity(ctx context.Context, olt, iface, capacity string) (string, error)

	SearchTickets(ctx context.Context, query string) ([]backend.Ticket, error)
	CreateTicket(ctx context.Context, req backend.TicketRequest) (*backend.TicketResult, error)
	CloseTicket(ctx context.Context, req backend.TicketUpdateRequest) (*backend.TicketResult, error)
	ForwardTicket(ctx context.Context, req backend.TicketUpdateRequest) (*backend.TicketResult, error)
	OCR(ctx context.Context, fileName string, image []byte) (string, error)
}

var _ API = (*backend.Client)(nil)
