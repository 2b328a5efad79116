package backend

import (
	"context"
	"net/url"
)

// SearchTickets returns open tickets matching query.
func (c *Client) SearchTickets(ctx context.Context, query string) ([]Ticket, error) {
	const op = "search tickets"
	q := url.Values{}
	q.Set("query", query)
	raw, err := c.getJSON(ctx, op, "/api/v1/ticket/search", q, true)
	if err != nil {
		return nil, err
	}
	return decodeList[Ticket](op, raw)
}

// CreateTicket opens a ticket.
func (c *Client) CreateTicket(ctx context.Context, req TicketRequest) (*TicketResult, error) {
	return c.ticketMutation(ctx, "create ticket", "/api/v1/ticket/create", req)
}

// CloseTicket closes the ticket matching req.Query.
func (c *Client) CloseTicket(ctx context.Context, req TicketUpdateRequest) (*TicketResult, error) {
	return c.ticketMutation(ctx, "close ticket", "/api/v1/ticket/close", req)
}

// ForwardTicket forwards the ticket matching req.Query to the next queue.
func (c *Client) ForwardTicket(ctx context.Context, req TicketUpdateRequest) (*TicketResult, error) {
	return c.ticketMutation(ctx, "forward ticket", "/api/v1/ticket/forward", req)
}

func (c *Client) ticketMutation(ctx context.Context, op, path string, payload interface{}) (*TicketResult, error) {
	raw, err := c.postJSON(ctx, op, path, payload)
	if err != nil {
		return nil, err
	}
	var res TicketResult
	if err := decode(op, raw, &res); err != nil {
		// Some deployments answer with plain text.
		return &TicketResult{Message: ResultText(raw)}, nil
	}
	if res.Message == "" {
		res.Message = ResultText(raw)
	}
	return &res, nil
}
