package backend

import (
	"context"
	"net/url"
)

// DeviceOp names an operation on an installed ONT.
type DeviceOp string

// Device operations, named by their endpoint.
const (
	OpStatus         DeviceOp = "cek"
	OpSignal         DeviceOp = "port_rx"
	OpPortState      DeviceOp = "port_state"
	OpReboot         DeviceOp = "reboot"
	OpRemove         DeviceOp = "no-onu"
	OpBandwidth      DeviceOp = "get-dba"
	OpRunningConfig  DeviceOp = "get-running-config"
	OpEthStatus      DeviceOp = "get-eth"
	OpLockPorts      DeviceOp = "lock-eth"
	OpChangeCapacity DeviceOp = "change-capacity"
)

// Mutates reports whether op changes device state.
func (op DeviceOp) Mutates() bool {
	switch op {
	case OpReboot, OpRemove, OpLockPorts, OpChangeCapacity:
		return true
	}
	return false
}

// DeviceCommand runs op against the ONT at iface on olt and returns the
// response flattened to text. extra members are merged into the request
// body.
func (c *Client) DeviceCommand(ctx context.Context, op DeviceOp, olt, iface string, extra map[string]interface{}) (string, error) {
	body := map[string]interface{}{
		"olt_name":  olt,
		"interface": iface,
	}
	for k, v := range extra {
		body[k] = v
	}
	raw, err := c.postJSON(ctx, "onu "+string(op), "/api/v1/onu/"+url.PathEscape(olt)+"/onu/"+string(op), body)
	if err != nil {
		return "", err
	}
	return ResultText(raw), nil
}

// Status returns the ONT status dump, including optical attenuation.
func (c *Client) Status(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpStatus, olt, iface, nil)
}

// Signal returns the ONT receive power readings.
func (c *Client) Signal(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpSignal, olt, iface, nil)
}

// PortState returns the PON port state.
func (c *Client) PortState(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpPortState, olt, iface, nil)
}

// Reboot restarts the ONT.
func (c *Client) Reboot(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpReboot, olt, iface, nil)
}

// Remove deletes the ONT registration from the OLT.
func (c *Client) Remove(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpRemove, olt, iface, nil)
}

// Bandwidth returns the ONT's current bandwidth profile.
func (c *Client) Bandwidth(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpBandwidth, olt, iface, nil)
}

// RunningConfig returns the OLT and ONT running configuration.
func (c *Client) RunningConfig(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpRunningConfig, olt, iface, nil)
}

// EthStatus returns the LAN port lock state.
func (c *Client) EthStatus(ctx context.Context, olt, iface string) (string, error) {
	return c.DeviceCommand(ctx, OpEthStatus, olt, iface, nil)
}

// LockPorts locks (unlocked=false) or unlocks every LAN port.
func (c *Client) LockPorts(ctx context.Context, olt, iface string, unlocked bool) (string, error) {
	return c.DeviceCommand(ctx, OpLockPorts, olt, iface, map[string]interface{}{"is_unlocked": unlocked})
}

// ChangeCapacity moves the ONT to a new bandwidth package.
func (c *Client) ChangeCapacity(ctx context.Context, olt, iface, capacity string) (string, error) {
	return c.DeviceCommand(ctx, OpChangeCapacity, olt, iface, map[string]interface{}{"new_capacity": capacity})
}
