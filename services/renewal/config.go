package renewal

import (
	"fmt"
	"time"

	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/captcha/capsolver"
	"github.com/uzx-v/renewbot/lib/ghsecrets"
	"github.com/uzx-v/renewbot/lib/notify"
	"github.com/uzx-v/renewbot/lib/notify/mail"
	"github.com/uzx-v/renewbot/lib/notify/telegram"
	"github.com/uzx-v/renewbot/lib/osutil"
	"github.com/uzx-v/renewbot/lib/proxy"
	"github.com/uzx-v/renewbot/lib/renew"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/scrapers/castlehost"
	"github.com/uzx-v/renewbot/lib/scrapers/katabump"
	"github.com/uzx-v/renewbot/lib/scrapers/pella"
	"github.com/uzx-v/renewbot/lib/scrapers/weirdhost"
)

// Config is the on-disk shape both binaries read. Secrets fall back to
// the environment so the same file works locally and on a ci runner.
type Config struct {
	Database string `json:"database"`
	// Port the daemon's monitor listens on.
	Port int `json:"port"`
	// AccessToken guards the monitor api when set.
	AccessToken string `json:"access_token"`
	// IntervalHours between renewal passes when running as a daemon.
	IntervalHours int `json:"interval_hours"`
	// VlessUri enables the proxied fallback route.
	VlessUri string `json:"vless_uri"`
	// ScreenshotDir keeps failure screenshots on disk when set.
	ScreenshotDir string `json:"screenshot_dir"`

	Browser struct {
		Headful        bool   `json:"headful"`
		ExecutablePath string `json:"executable_path"`
	} `json:"browser"`

	Renew struct {
		Force         bool `json:"force"`
		ThresholdDays int  `json:"threshold_days"`
	} `json:"renew"`

	Telegram struct {
		Token  string `json:"token"`
		ChatId string `json:"chat_id"`
	} `json:"telegram"`

	Smtp struct {
		Server       string `json:"server"`
		Port         int    `json:"port"`
		EmailAddress string `json:"email_address"`
		Password     string `json:"password"`
		To           string `json:"to"`
	} `json:"smtp"`

	Github struct {
		Token      string `json:"token"`
		Repository string `json:"repository"`
	} `json:"github"`

	Capsolver struct {
		ClientKey string `json:"client_key"`
	} `json:"capsolver"`

	Providers struct {
		Castlehost struct {
			Enabled      bool   `json:"enabled"`
			CookieString string `json:"cookie_string"`
			ServerId     string `json:"server_id"`
			SecretName   string `json:"secret_name"`
		} `json:"castlehost"`

		Katabump struct {
			Enabled  bool   `json:"enabled"`
			Email    string `json:"email"`
			Password string `json:"password"`
			ServerId string `json:"server_id"`
		} `json:"katabump"`

		Pella struct {
			Enabled bool `json:"enabled"`
			// Accounts is "email:password" pairs separated by ';' or ','.
			Accounts string `json:"accounts"`
		} `json:"pella"`

		Weirdhost struct {
			Enabled     bool   `json:"enabled"`
			CookieValue string `json:"cookie_value"`
			CookieName  string `json:"cookie_name"`
			ServerUrl   string `json:"server_url"`
			SecretName  string `json:"secret_name"`
			ProxyOnly   bool   `json:"proxy_only"`
		} `json:"weirdhost"`
	} `json:"providers"`
}

func (c Config) MonitorPort() int {
	if c.Port == 0 {
		return 7877
	}
	return c.Port
}

func (c Config) Interval() time.Duration {
	if c.IntervalHours <= 0 {
		return time.Hour * 12
	}
	return time.Duration(c.IntervalHours) * time.Hour
}

func (c Config) DatabasePath() string {
	if c.Database == "" {
		return "renewbot.db"
	}
	return c.Database
}

func (c Config) notifier() notify.Notifier {
	var fanout notify.Fanout
	token := osutil.EnvOr("TG_BOT_TOKEN", c.Telegram.Token)
	chatId := osutil.EnvOr("TG_CHAT_ID", c.Telegram.ChatId)
	if token != "" && chatId != "" {
		fanout = append(fanout, telegram.Notifier{
			Client: telegram.NewClient(telegram.Options{Token: token, ChatId: chatId}),
		})
	}
	if c.Smtp.Server != "" && c.Smtp.To != "" {
		fanout = append(fanout, mail.Notifier{
			Smtp: mail.SmtpConfig{
				Server:       c.Smtp.Server,
				Port:         c.Smtp.Port,
				EmailAddress: c.Smtp.EmailAddress,
				Password:     osutil.EnvOr("SMTP_PASSWORD", c.Smtp.Password),
			},
			To: c.Smtp.To,
		})
	}
	if len(fanout) == 0 {
		return nil
	}
	return fanout
}

func (c Config) secrets() *ghsecrets.Client {
	token := osutil.EnvOr("REPO_TOKEN", c.Github.Token)
	repo := osutil.EnvOr("GITHUB_REPOSITORY", c.Github.Repository)
	if token == "" || repo == "" {
		return nil
	}
	return ghsecrets.NewClient(ghsecrets.Options{Token: token, Repo: repo})
}

func (c Config) providers() ([]Registration, error) {
	var out []Registration

	if p := c.Providers.Castlehost; p.Enabled {
		cookies := osutil.EnvOr("CASTLE_COOKIES", p.CookieString)
		if cookies == "" || p.ServerId == "" {
			return nil, fmt.Errorf("castlehost: cookie_string and server_id are required")
		}
		out = append(out, Registration{
			Provider: castlehost.New(castlehost.Options{
				CookieString: cookies,
				ServerId:     p.ServerId,
			}),
			SecretName: p.SecretName,
		})
	}

	if p := c.Providers.Katabump; p.Enabled {
		password := osutil.EnvOr("KATABUMP_PASSWORD", p.Password)
		if p.Email == "" || password == "" || p.ServerId == "" {
			return nil, fmt.Errorf("katabump: email, password and server_id are required")
		}
		var solver *capsolver.Client
		if key := osutil.EnvOr("CAPSOLVER_KEY", c.Capsolver.ClientKey); key != "" {
			solver = capsolver.NewClient(capsolver.Options{ClientKey: key})
		}
		out = append(out, Registration{
			Provider: katabump.New(katabump.Options{
				Email:    p.Email,
				Password: password,
				ServerId: p.ServerId,
				Solver:   solver,
			}),
		})
	}

	if p := c.Providers.Pella; p.Enabled {
		accounts := pella.ParseAccounts(osutil.EnvOr("PELLA_ACCOUNTS", p.Accounts))
		if len(accounts) == 0 {
			return nil, fmt.Errorf("pella: no usable accounts configured")
		}
		out = append(out, Registration{
			Provider: pella.New(pella.Options{Accounts: accounts}),
		})
	}

	if p := c.Providers.Weirdhost; p.Enabled {
		cookie := osutil.EnvOr("REMEMBER_WEB_COOKIE", p.CookieValue)
		if cookie == "" || p.ServerUrl == "" {
			return nil, fmt.Errorf("weirdhost: cookie_value and server_url are required")
		}
		out = append(out, Registration{
			Provider: weirdhost.New(weirdhost.Options{
				CookieValue: cookie,
				CookieName:  p.CookieName,
				ServerUrl:   p.ServerUrl,
			}),
			SecretName: p.SecretName,
			ProxyOnly:  p.ProxyOnly,
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	return out, nil
}

// Build wires the full renewal service from config: store, notifiers,
// secret rotation, proxy chain and every enabled provider. The caller
// owns the returned store.
func (c Config) Build() (Service, renewstore.Store, error) {
	providers, err := c.providers()
	if err != nil {
		return Service{}, renewstore.Store{}, err
	}

	store, err := renewstore.Open(c.DatabasePath())
	if err != nil {
		return Service{}, renewstore.Store{}, fmt.Errorf("open database: %w", err)
	}

	return NewService(Options{
		Providers: providers,
		Chain:     proxy.NewChain(osutil.EnvOr("VLESS_URI", c.VlessUri)),
		Browser: browser.Options{
			Headful:        c.Browser.Headful,
			ExecutablePath: c.Browser.ExecutablePath,
		},
		Store:         store,
		Notifier:      c.notifier(),
		Secrets:       c.secrets(),
		ScreenshotDir: c.ScreenshotDir,
		Params: renew.Params{
			Force:         c.Renew.Force,
			ThresholdDays: c.Renew.ThresholdDays,
		},
	}), store, nil
}
