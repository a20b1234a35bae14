package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfg *koanf.Koanf

const (
	CMD               = "cmd"
	LOG_LEVEL         = "log.level"
	LOG_FILE          = "log.file"
	CONFIG_FILE       = "config.file"
	TIMEZONE          = "timezone"
	GATEWAY_URL       = "gateway.url"
	GATEWAY_TOKEN     = "gateway.token"
	GATEWAY_TIMEOUT   = "gateway.timeout"
	OWNER_IDENTITY    = "owner.identity"
	CALLER_IDENTITY   = "caller.identity"
	CACHE_FILE        = "cache.file"
	DB_DSN            = "db.dsn"
	SCHEDULES_FILE    = "schedules.file"
	CALDAV_URL        = "caldav.url"
	CALDAV_USER       = "caldav.user"
	CALDAV_PASS       = "caldav.pass"
	ICS_URL           = "ics.url"
	SYNC_CRON         = "sync.cron"
	REFRESH_DAYS      = "refresh.days"
	REFRESH_DELAY     = "refresh.delay"
	EXPAND_BUDGET     = "expand.budget"
	EXPAND_DAYS       = "expand.days"
	EXPORT_FILE       = "export.file"
	EVENT_ID          = "event.id"
	PATCH_TITLE       = "patch.title"
	PATCH_DESCRIPTION = "patch.description"
	PATCH_LOCATION    = "patch.location"
	envFile           = ".env"
)

var secrets = map[string]bool{
	GATEWAY_TOKEN: true,
	CALDAV_PASS:   true,
	DB_DSN:        true,
}

func Gist() *koanf.Koanf {
	if cfg == nil {
		ini()
	}
	return cfg
}

func Sprint() string {
	sb := strings.Builder{}
	sb.WriteString("cmd|required|-\n")
	sb.WriteString("config.file|optional|-\n")
	sb.WriteString("log.level|optional|info\n")
	sb.WriteString("log.file|optional|-\n")
	sb.WriteString("timezone|optional|Local\n")
	sb.WriteString("gateway.url|required for delete/update|-\n")
	sb.WriteString("gateway.token|required for delete/update|-\n")
	sb.WriteString("gateway.timeout|optional|15s\n")
	sb.WriteString("owner.identity|required for delete/update|-\n")
	sb.WriteString("caller.identity|required|-\n")
	sb.WriteString("cache.file|optional|calboard-cache.json\n")
	sb.WriteString("db.dsn|optional|-\n")
	sb.WriteString("schedules.file|optional|calboard-schedules.yaml\n")
	sb.WriteString("caldav.url|optional|-\n")
	sb.WriteString("caldav.user|optional|-\n")
	sb.WriteString("caldav.pass|optional|-\n")
	sb.WriteString("ics.url|optional|-\n")
	sb.WriteString("sync.cron|optional|*/5 * * * *\n")
	sb.WriteString("refresh.days|optional|30\n")
	sb.WriteString("refresh.delay|optional|1.5s\n")
	sb.WriteString("expand.budget|optional|600\n")
	sb.WriteString("expand.days|optional|30\n")
	sb.WriteString("export.file|optional|-\n")
	sb.WriteString("event.id|required for delete/update|-\n")
	sb.WriteString("patch.title|optional|-\n")
	sb.WriteString("patch.description|optional|-\n")
	sb.WriteString("patch.location|optional|-\n")
	return sb.String()
}

func ini() {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("error loading .env file")
	}
	cfg = koanf.New(".")

	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}

	f.String(CMD, "", "application run mode")
	f.String(CONFIG_FILE, os.Getenv("CALBOARD_CONFIG"), "yaml config file")
	f.String(LOG_LEVEL, "info", "log level")
	f.String(LOG_FILE, "", "rotated log file, stderr only when empty")
	f.String(TIMEZONE, "", "IANA timezone of the board")
	f.String(GATEWAY_URL, "", "external calendar command endpoint")
	f.String(GATEWAY_TOKEN, os.Getenv("CALBOARD_GATEWAY_TOKEN"), "external calendar command token")
	f.Duration(GATEWAY_TIMEOUT, 0, "external calendar request timeout")
	f.String(OWNER_IDENTITY, "", "identity allowed to change synced events")
	f.String(CALLER_IDENTITY, os.Getenv("USER"), "identity of the caller")
	f.String(CACHE_FILE, "calboard-cache.json", "sync cache file, used without db.dsn")
	f.String(DB_DSN, os.Getenv("DATABASE_URI"), "postgres connection string")
	f.String(SCHEDULES_FILE, "calboard-schedules.yaml", "schedules file, used without db.dsn")
	f.String(CALDAV_URL, "", "caldav calendar url")
	f.String(CALDAV_USER, "", "caldav user")
	f.String(CALDAV_PASS, "", "caldav password")
	f.String(ICS_URL, "", "ics feed url")
	f.String(SYNC_CRON, "*/5 * * * *", "cron expression of the sync task")
	f.Int(REFRESH_DAYS, 30, "days of synced events to show")
	f.Duration(REFRESH_DELAY, 0, "delay of the refresh after a fallback request")
	f.Int(EXPAND_BUDGET, 0, "cursor steps per schedule")
	f.Int(EXPAND_DAYS, 30, "days of occurrences to expand")
	f.String(EXPORT_FILE, "", "ics file to export occurrences to")
	f.String(EVENT_ID, "", "external event id")
	f.String(PATCH_TITLE, "", "new event title")
	f.String(PATCH_DESCRIPTION, "", "new event description")
	f.String(PATCH_LOCATION, "", "new event location")
	if err := f.Parse(os.Args[1:]); err != nil {
		log.Panic().Err(err).Msg("error parsing flags")
	}

	if fname, _ := f.GetString(CONFIG_FILE); fname != "" {
		if err := cfg.Load(file.Provider(fname), yaml.Parser()); err != nil {
			log.Panic().Err(err).Str("file", fname).Msg("error loading config file")
		}
	}
	if err := cfg.Load(posflag.Provider(f, ".", cfg), nil); err != nil {
		log.Panic().Err(err).Msg("error loading config")
	}
	lvl, err := zerolog.ParseLevel(cfg.String(LOG_LEVEL))
	if err != nil {
		log.Panic().Err(err).Msg("error parsing log level")
	}
	zerolog.SetGlobalLevel(lvl)
	if fname := cfg.String(LOG_FILE); fname != "" {
		log.Logger = NewLogger(os.Stderr, fname)
	}

	printCfg()
}

// NewLogger writes to console and to a size-rotated log file.
func NewLogger(console io.Writer, fname string) zerolog.Logger {
	rotated := &lumberjack.Logger{
		Filename:   fname,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	return zerolog.New(zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: console}, rotated)).
		With().
		Timestamp().
		Logger()
}

func printCfg() {
	flat, _ := maps.Flatten(cfg.Raw(), nil, ".")
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(flat[k])
		if secrets[k] && v != "" {
			v = "***"
		}
		log.Debug().Msgf("%s: %s", k, v)
	}
}
