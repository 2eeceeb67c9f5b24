package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	duoapi "github.com/duosecurity/duo_api_golang"
	"github.com/duosecurity/duo_api_golang/authapi"
)

// GracePeriod is how long an approved push stays valid. Low enough to
// bound exposure, high enough that a burst of alerts needs one approval.
const GracePeriod = 2 * time.Hour

// duoClient is the slice of the Duo Auth API the adapter needs. Satisfied
// by *authapi.AuthApi; tests substitute a fake.
type duoClient interface {
	Preauth(options ...func(*url.Values)) (*authapi.PreauthResult, error)
	Auth(factor string, options ...func(*url.Values)) (*authapi.AuthResult, error)
	AuthStatus(txid string) (*authapi.AuthStatusResult, error)
}

// Duo verifies a user via an asynchronous Duo push. Begin fires the push
// and records the transaction id; Status polls it until the user decides.
type Duo struct {
	client   duoClient
	username string
	appName  string
	logger   *slog.Logger

	txid     string
	state    State
	authTime time.Time
	now      func() time.Time
}

// DuoConfig holds the Duo Auth API credentials.
type DuoConfig struct {
	IntegrationKey string
	SecretKey      string
	Host           string
	// AppName labels pushes in the Duo app. Defaults to "triagebot".
	AppName string
}

// NewDuoFactory builds per-user Duo authenticators sharing one API client.
func NewDuoFactory(cfg DuoConfig) Factory {
	if cfg.AppName == "" {
		cfg.AppName = "triagebot"
	}
	api := authapi.NewAuthApi(*duoapi.NewDuoApi(
		cfg.IntegrationKey, cfg.SecretKey, cfg.Host, cfg.AppName))
	return func(username string) Authenticator {
		return newDuo(api, username, cfg.AppName)
	}
}

func newDuo(client duoClient, username, appName string) *Duo {
	return &Duo{
		client:   client,
		username: username,
		appName:  appName,
		logger:   slog.Default().With("component", "duo", "user", username),
		state:    StateNone,
		now:      time.Now,
	}
}

// CanAuth reports whether the user has a push-capable device enrolled.
func (d *Duo) CanAuth(ctx context.Context) (bool, error) {
	res, err := d.client.Preauth(authapi.PreauthUsername(d.username))
	if err != nil {
		return false, fmt.Errorf("duo preauth failed for %s: %w", d.username, err)
	}
	if res.Stat != "OK" {
		return false, fmt.Errorf("duo preauth returned stat %q for %s", res.Stat, d.username)
	}
	if res.Response.Result != "auth" {
		return false, nil
	}
	for _, device := range res.Response.Devices {
		for _, capability := range device.Capabilities {
			if capability == "push" {
				return true, nil
			}
		}
	}
	return false, nil
}

// Begin sends an asynchronous push carrying the reason.
func (d *Duo) Begin(ctx context.Context, reason string) error {
	pushinfo := "from=" + d.appName
	if reason != "" {
		pushinfo += "&" + url.Values{"reason": {reason}}.Encode()
	}

	res, err := d.client.Auth("push",
		authapi.AuthUsername(d.username),
		authapi.AuthDevice("auto"),
		authapi.AuthType(d.appName),
		authapi.AuthPushinfo(pushinfo),
		authapi.AuthAsync(),
	)
	if err != nil {
		return fmt.Errorf("duo push failed for %s: %w", d.username, err)
	}
	if res.Stat != "OK" {
		return fmt.Errorf("duo push returned stat %q for %s", res.Stat, d.username)
	}

	d.txid = res.Response.Txid
	d.state = StatePending
	d.logger.Debug("Sent Duo push", "txid", d.txid)
	return nil
}

// Status polls the pending transaction and decays stale authorizations.
func (d *Duo) Status(ctx context.Context) (State, error) {
	switch d.state {
	case StatePending:
		res, err := d.client.AuthStatus(d.txid)
		if err != nil {
			return d.state, fmt.Errorf("duo status poll failed for %s: %w", d.username, err)
		}
		switch res.Response.Result {
		case "waiting":
			// Still pending
		case "allow":
			d.state = StateAuthorized
			d.authTime = d.now()
		default:
			d.state = StateDenied
			d.authTime = time.Time{}
		}
	case StateAuthorized:
		if d.now().Sub(d.authTime) >= GracePeriod {
			d.state = StateNone
		}
	}
	return d.state, nil
}

// Reset abandons the in-flight transaction.
func (d *Duo) Reset() {
	d.txid = ""
	d.state = StateNone
}
