package client

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/mcrlens/lensctl/pkg/config"
	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/session"
	"github.com/mcrlens/lensctl/pkg/types"
)

func (c *Client) GetStatus() (*session.Snapshot, error) {
	var snap session.Snapshot
	if err := c.getJSON("/status", &snap); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}
	return &snap, nil
}

// Initialize connects and initializes the controller. The returned handle is
// set even when err reports axis faults.
func (c *Client) Initialize(req session.InitRequest) (*session.SessionHandle, error) {
	payload, err := marshal(req)
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/initialize", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to initialize")
	}

	var handle session.SessionHandle
	if err := json.Unmarshal([]byte(ret), &handle); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal session handle")
	}
	if len(handle.Faults) > 0 {
		return &handle, &session.AxisFaultError{Faults: handle.Faults}
	}
	return &handle, nil
}

func (c *Client) Move(req session.MoveRequest) (*types.MoveResult, error) {
	payload, err := marshal(req)
	if err != nil {
		return nil, err
	}
	ret, err := c.Post("/move", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to move %s", req.Axis)
	}

	var res types.MoveResult
	if err := json.Unmarshal([]byte(ret), &res); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal move result")
	}
	return &res, nil
}

func (c *Client) SetFamily(family string) (string, error) {
	payload, err := marshal(family)
	if err != nil {
		return "", err
	}
	return c.Put("/family", payload)
}

func (c *Client) SetPort(port string) (string, error) {
	payload, err := marshal(port)
	if err != nil {
		return "", err
	}
	return c.Put("/port", payload)
}

func (c *Client) SetFilter(position int) (string, error) {
	return c.Put("/filter", strconv.Itoa(position))
}

func (c *Client) SetSpeeds(speeds session.Speeds) (session.Speeds, error) {
	payload, err := marshal(speeds)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/speeds", payload)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set speeds")
	}

	var got session.Speeds
	if err := json.Unmarshal([]byte(ret), &got); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal speeds")
	}
	return got, nil
}

func (c *Client) SetRespectLimits(respect bool) (string, error) {
	return c.Put("/respect-limits", strconv.FormatBool(respect))
}

func (c *Client) SetBacklash(correct bool) (string, error) {
	return c.Put("/backlash", strconv.FormatBool(correct))
}

func (c *Client) SetRelativeWhenUnknown(allow bool) (string, error) {
	return c.Put("/relative-when-unknown", strconv.FormatBool(allow))
}

func (c *Client) SetCommPath(path string) (string, error) {
	payload, err := marshal(path)
	if err != nil {
		return "", err
	}
	return c.Put("/comm-path", payload)
}

func (c *Client) GetFamilies() ([]lens.Configuration, error) {
	var families []lens.Configuration
	if err := c.getJSON("/families", &families); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get lens families")
	}
	return families, nil
}

func (c *Client) GetPorts() ([]string, error) {
	var ports []string
	if err := c.getJSON("/ports", &ports); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get comm ports")
	}
	return ports, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.getJSON("/config", &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return &conf, nil
}

// GetHistory returns the recorded transitions, oldest first. A positive since
// keeps only the transitions within that window.
func (c *Client) GetHistory(since time.Duration) ([]types.Transition, error) {
	path := "/history"
	if since > 0 {
		path += "?" + url.Values{"since": {since.String()}}.Encode()
	}
	var records []types.Transition
	if err := c.getJSON(path, &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status history")
	}
	return records, nil
}

func (c *Client) ClearHistory() (string, error) {
	return c.Delete("/history")
}

func (c *Client) GetWatch() (*types.WatchStatus, error) {
	var ws types.WatchStatus
	if err := c.getJSON("/watch", &ws); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get position watch")
	}
	return &ws, nil
}

func (c *Client) SetWatch(expr string) (string, error) {
	payload, err := marshal(expr)
	if err != nil {
		return "", err
	}
	return c.Put("/watch", payload)
}

func (c *Client) GetVersion() (string, error) {
	var v string
	if err := c.getJSON("/version", &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return v, nil
}
