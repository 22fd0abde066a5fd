package sentinel

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/crawler"
	"github.com/blackat5445/cisia-sentinel/sentinel/crawler/cisia"
	"github.com/blackat5445/cisia-sentinel/sentinel/database"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/github"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/blackat5445/cisia-sentinel/sentinel/scheduler"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig     `toml:"log"`
	Bot    BotConfig     `toml:"bot"`
	DB     DBConfig      `toml:"db"`
	GitHub GitHubConfig  `toml:"github"`
	Crawl  CrawlConfig   `toml:"crawl"`
	Email  EmailConfig   `toml:"email"`
	Groups []GroupConfig `toml:"groups"`
	// Premium is the donators-only group; no exam code bound to it.
	Premium PremiumConfig `toml:"premium"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
	AdminID   snowflake.ID   `toml:"admin_id"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type GitHubConfig struct {
	RepoOwner string `toml:"repo_owner"`
	RepoName  string `toml:"repo_name"`
	Token     string `toml:"token"`
}

type CrawlConfig struct {
	Mode                 string `toml:"mode"`
	FixedMinutes         int    `toml:"fixed_minutes"`
	RandomFromSeconds    int    `toml:"random_from_seconds"`
	RandomToSeconds      int    `toml:"random_to_seconds"`
	Format               string `toml:"format"`
	PageLanguage         string `toml:"page_language"`
	MessageCount         int    `toml:"message_count"`
	StartupDelayMinutes  int    `toml:"startup_delay_minutes"`
	MaxConsecutiveErrors int    `toml:"max_consecutive_errors"`
	HeartbeatSchedule    string `toml:"heartbeat_schedule"`
}

type EmailConfig struct {
	Enabled    bool   `toml:"enabled"`
	PublicKey  string `toml:"public_key"`
	PrivateKey string `toml:"private_key"`
	From       string `toml:"from"`
	To         string `toml:"to"`
}

type GroupConfig struct {
	Exam      string       `toml:"exam"`
	GuildID   snowflake.ID `toml:"guild_id"`
	ChannelID snowflake.ID `toml:"channel_id"`
}

type PremiumConfig struct {
	GuildID   snowflake.ID `toml:"guild_id"`
	ChannelID snowflake.ID `toml:"channel_id"`
}

// Validate rejects configurations that cannot run. Interval bounds are
// checked through the scheduler so the startup failure carries the
// same wording as the scheduler's own errors.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if _, err := scheduler.New(c.SchedulerConfig()); err != nil {
		return err
	}
	for _, g := range c.Groups {
		if !exams.Valid(exams.Code(g.Exam)) {
			return fmt.Errorf("unknown exam code %q in groups", g.Exam)
		}
		if g.GuildID == 0 || g.ChannelID == 0 {
			return fmt.Errorf("group %s needs both guild_id and channel_id", g.Exam)
		}
	}
	if c.Email.Enabled && (c.Email.PublicKey == "" || c.Email.PrivateKey == "" || c.Email.To == "") {
		return fmt.Errorf("email alerts enabled but mailjet keys or recipient missing")
	}
	return nil
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Mode:       scheduler.Mode(c.Crawl.Mode),
		Fixed:      time.Duration(c.Crawl.FixedMinutes) * time.Minute,
		RandomFrom: time.Duration(c.Crawl.RandomFromSeconds) * time.Second,
		RandomTo:   time.Duration(c.Crawl.RandomToSeconds) * time.Second,
	}
}

func (c *Config) DatabaseConfig() database.DBConfig {
	return database.DBConfig{
		Host:     c.DB.Host,
		Port:     c.DB.Port,
		User:     c.DB.User,
		Password: c.DB.Password,
		Database: c.DB.Database,
		PoolSize: c.DB.PoolSize,
	}
}

func (c *Config) GitHubStarsConfig() github.Config {
	return github.Config{
		RepoOwner: c.GitHub.RepoOwner,
		RepoName:  c.GitHub.RepoName,
		Token:     c.GitHub.Token,
	}
}

func (c *Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		MessageCount:           c.Crawl.MessageCount,
		StartupDelay:           time.Duration(c.Crawl.StartupDelayMinutes) * time.Minute,
		MaxConsecutiveFailures: c.Crawl.MaxConsecutiveErrors,
		HeartbeatSpec:          c.Crawl.HeartbeatSchedule,
	}
}

func (c *Config) FetcherConfig() cisia.Config {
	return cisia.Config{
		Format:       c.Crawl.Format,
		PageLanguage: c.Crawl.PageLanguage,
	}
}

// Directory builds the exam-group directory from the configured
// groups.
func (c *Config) Directory() *exams.Directory {
	groups := make([]exams.Group, 0, len(c.Groups))
	for _, g := range c.Groups {
		groups = append(groups, exams.Group{
			Code:      exams.Code(g.Exam),
			GuildID:   g.GuildID,
			ChannelID: g.ChannelID,
		})
	}
	var premium *exams.Group
	if c.Premium.GuildID != 0 {
		premium = &exams.Group{
			Code:      invites.Premium,
			GuildID:   c.Premium.GuildID,
			ChannelID: c.Premium.ChannelID,
		}
	}
	return exams.NewDirectory(groups, premium)
}
