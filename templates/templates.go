// Package templates renders Handlebars placeholders in tool arguments and rule
// values, e.g. {{CITY}}, {{uuid}}, {{randomInt lower=1 upper=9}}.
package templates

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/mykhaliev/tool-bench/logger"
)

var charsets = map[string]string{
	"ALPHANUMERIC": "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
	"ALPHABETIC":   "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"NUMERIC":      "0123456789",
	"HEXADECIMAL":  "0123456789abcdef",
}

var fakers = map[string]func(f *gofakeit.Faker) string{
	"Name.first_name":   func(f *gofakeit.Faker) string { return f.FirstName() },
	"Name.last_name":    func(f *gofakeit.Faker) string { return f.LastName() },
	"Name.full_name":    func(f *gofakeit.Faker) string { return f.Name() },
	"Address.city":      func(f *gofakeit.Faker) string { return f.City() },
	"Address.country":   func(f *gofakeit.Faker) string { return f.Country() },
	"Address.postcode":  func(f *gofakeit.Faker) string { return f.Zip() },
	"Internet.email":    func(f *gofakeit.Faker) string { return f.Email() },
	"Internet.username": func(f *gofakeit.Faker) string { return f.Username() },
	"Internet.url":      func(f *gofakeit.Faker) string { return f.URL() },
	"Internet.ipv4":     func(f *gofakeit.Faker) string { return f.IPv4Address() },
	"Company.name":      func(f *gofakeit.Faker) string { return f.Company() },
	"Lorem.word":        func(f *gofakeit.Faker) string { return f.Word() },
	"Lorem.sentence":    func(f *gofakeit.Faker) string { return f.Sentence(5) },
	"Misc.uuid":         func(f *gofakeit.Faker) string { return f.UUID() },
	"Misc.boolean":      func(f *gofakeit.Faker) string { return strconv.FormatBool(f.Bool()) },
}

type TemplateEngine struct{}

var (
	engineInstance *TemplateEngine
	engineOnce     sync.Once
)

// NewTemplateEngine registers the helpers once; raymond panics on re-registration.
func NewTemplateEngine() *TemplateEngine {
	engineOnce.Do(func() {
		registerHelpers()
		engineInstance = &TemplateEngine{}
	})
	return engineInstance
}

func registerHelpers() {
	raymond.RegisterHelper("uuid", func() raymond.SafeString {
		return raymond.SafeString(uuid.New().String())
	})

	raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
		kind := strings.ToUpper(options.HashStr("type"))
		if kind == "UUID" {
			return uuid.New().String()
		}
		charset, ok := charsets[kind]
		if !ok {
			charset = charsets["ALPHANUMERIC"]
		}

		length := 10
		if v := options.HashProp("length"); v != nil {
			length = toInt(v)
		}

		s := randomString(charset, length)
		if raymond.IsTrue(options.HashProp("uppercase")) {
			s = strings.ToUpper(s)
		}
		return s
	})

	raymond.RegisterHelper("randomInt", func(options *raymond.Options) string {
		lower, upper := 0, 100
		if v := options.HashProp("lower"); v != nil {
			lower = toInt(v)
		}
		if v := options.HashProp("upper"); v != nil {
			upper = toInt(v)
		}
		if lower > upper {
			lower, upper = upper, lower
		}

		n, err := rand.Int(rand.Reader, big.NewInt(int64(upper-lower+1)))
		if err != nil {
			return strconv.Itoa(lower)
		}
		return strconv.Itoa(int(n.Int64()) + lower)
	})

	raymond.RegisterHelper("now", func(options *raymond.Options) string {
		now := time.Now().UTC()
		if offset := options.HashStr("offset"); offset != "" {
			if d, err := ParseOffset(offset); err == nil {
				now = now.Add(d)
			}
		}
		if tz := options.HashStr("timezone"); tz != "" {
			if loc, err := time.LoadLocation(tz); err == nil {
				now = now.In(loc)
			}
		}

		switch format := options.HashStr("format"); format {
		case "":
			return now.Format(time.RFC3339)
		case "unix":
			return strconv.FormatInt(now.Unix(), 10)
		case "epoch":
			return strconv.FormatInt(now.UnixMilli(), 10)
		default:
			// Go reference layout, e.g. "2006-01-02"
			return now.Format(format)
		}
	})

	raymond.RegisterHelper("faker", func(key string) raymond.SafeString {
		gen, ok := fakers[key]
		if !ok {
			return ""
		}
		return raymond.SafeString(gen(gofakeit.New(0)))
	})
}

// Render executes input as a template. Inputs without placeholders are returned
// as-is; on any template error the input is returned unchanged.
func Render(input string, ctx map[string]string) string {
	if !strings.Contains(input, "{{") {
		return input
	}
	NewTemplateEngine()

	tmpl, err := raymond.Parse(input)
	if err != nil {
		logger.Logger.Warn("Failed to parse template", "template", input, "error", err)
		return input
	}

	out, err := tmpl.Exec(unescaped(ctx))
	if err != nil {
		logger.Logger.Warn("Failed to execute template", "template", input, "error", err)
		return input
	}
	return out
}

// unescaped marks context values as safe; rendered text is tool input, not HTML.
func unescaped(ctx map[string]string) map[string]any {
	data := make(map[string]any, len(ctx))
	for k, v := range ctx {
		data[k] = raymond.SafeString(v)
	}
	return data
}

// RenderValue renders every string inside a decoded JSON/YAML value and returns
// a new value; v itself is not modified.
func RenderValue(v any, ctx map[string]string) any {
	switch t := v.(type) {
	case string:
		return Render(t, ctx)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = RenderValue(child, ctx)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = RenderValue(child, ctx)
		}
		return out
	default:
		return v
	}
}

// StaticContext builds the variables available to every template of a test
// file: the environment, RUN_ID, TEMP_DIR, TEST_DIR and user variables. User
// variables may reference the others.
func StaticContext(sourceFile string, variables map[string]string) map[string]string {
	ctx := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			ctx[k] = v
		}
	}

	ctx["RUN_ID"] = uuid.New().String()
	ctx["TEMP_DIR"] = os.TempDir()
	if sourceFile != "" {
		if abs, err := filepath.Abs(sourceFile); err == nil {
			ctx["TEST_DIR"] = filepath.Dir(abs)
		}
	}

	for k, v := range variables {
		ctx[k] = Render(v, ctx)
	}
	return ctx
}

// ParseOffset parses offsets such as "3 days" or "-2 hours".
func ParseOffset(offset string) (time.Duration, error) {
	parts := strings.Fields(offset)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid offset format: %q", offset)
	}

	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offset value: %w", err)
	}

	units := map[string]time.Duration{
		"second": time.Second,
		"minute": time.Minute,
		"hour":   time.Hour,
		"day":    24 * time.Hour,
		"week":   7 * 24 * time.Hour,
	}
	unit, ok := units[strings.TrimSuffix(strings.ToLower(parts[1]), "s")]
	if !ok {
		return 0, fmt.Errorf("unknown time unit: %s", parts[1])
	}
	return time.Duration(n) * unit, nil
}

func randomString(charset string, length int) string {
	out := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return ""
		}
		out[i] = charset[n.Int64()]
	}
	return string(out)
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
