package backend

import (
	"context"
	"net/url"
	"strconv"
)

// searchLimit is the page size requested from the customer search.
const searchLimit = 20

// Options returns the provisioning options, including the OLT list.
func (c *Client) Options(ctx context.Context) (*Options, error) {
	const op = "options"
	raw, err := c.getJSON(ctx, op, "/api/v1/config/api/options", nil, false)
	if err != nil {
		return nil, err
	}
	var opts Options
	if err := decode(op, raw, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// DetectDevices scans olt for ONTs that are not yet configured.
func (c *Client) DetectDevices(ctx context.Context, olt string) ([]Device, error) {
	const op = "detect devices"
	raw, err := c.getJSON(ctx, op, "/api/v1/config/api/olts/"+url.PathEscape(olt)+"/detect-onts", nil, false)
	if err != nil {
		return nil, err
	}
	return decodeList[Device](op, raw)
}

// Configure registers a device on olt for a subscriber and returns the
// API's confirmation text.
func (c *Client) Configure(ctx context.Context, olt string, req ConfigureRequest) (string, error) {
	const op = "configure"
	if req.EthLocks == nil {
		req.EthLocks = []bool{}
	}
	raw, err := c.postJSON(ctx, op, "/api/v1/config/api/olts/"+url.PathEscape(olt)+"/configure", req)
	if err != nil {
		return "", err
	}
	return ResultText(raw), nil
}

// ProvisioningList returns subscribers waiting for installation.
func (c *Client) ProvisioningList(ctx context.Context) ([]Customer, error) {
	const op = "provisioning list"
	raw, err := c.getJSON(ctx, op, "/api/v1/customer/psb", nil, false)
	if err != nil {
		return nil, err
	}
	return decodeList[Customer](op, raw)
}

// SearchCustomers finds subscribers by name or PPPoE user.
func (c *Client) SearchCustomers(ctx context.Context, query string) ([]Customer, error) {
	const op = "search customers"
	q := url.Values{}
	q.Set("search", query)
	q.Set("limit", strconv.Itoa(searchLimit))
	raw, err := c.getJSON(ctx, op, "/api/v1/customer/customers-data", q, true)
	if err != nil {
		return nil, err
	}
	return decodeList[Customer](op, raw)
}

// Billing looks up billing records by name or PPPoE user.
func (c *Client) Billing(ctx context.Context, query string) ([]BillingRecord, error) {
	const op = "billing"
	q := url.Values{}
	q.Set("query", query)
	raw, err := c.getJSON(ctx, op, "/api/v1/customer/customers-billing", q, true)
	if err != nil {
		return nil, err
	}
	return decodeList[BillingRecord](op, raw)
}
