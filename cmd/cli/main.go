// Command grcctl is an operator client for the grccore HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aryan0dhankhar/grccore/internal/security/auth"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "token":
		err = handleToken(args)
	case "products":
		err = handleProducts(newClient(), args)
	case "subscription":
		err = handleSubscription(newClient(), args)
	case "quota":
		err = handleQuota(newClient(), args)
	case "risk":
		err = handleRisk(newClient(), args)
	case "task":
		err = handleTask(newClient(), args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage, see grcctl help")

// Token commands
func handleToken(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: grcctl token <issue|show|clear>")
		return nil
	}
	switch args[0] {
	case "issue":
		fs := flag.NewFlagSet("issue", flag.ExitOnError)
		tenant := fs.String("tenant", "", "tenant id")
		user := fs.String("user", "", "user id")
		role := fs.String("role", "tenant_admin", "role")
		ttl := fs.Duration("ttl", 8*time.Hour, "token lifetime")
		_ = fs.Parse(args[1:])
		if *tenant == "" || *user == "" {
			fs.PrintDefaults()
			return errUsage
		}
		secret := os.Getenv("JWT_SECRET")
		tm := auth.NewTokenManager(secret, os.Getenv("JWT_ISSUER"))
		token, err := tm.GenerateToken(*tenant, *user, *role, *ttl)
		if err != nil {
			return err
		}
		if err := saveToken(token); err != nil {
			return err
		}
		fmt.Printf("✓ Token issued for %s/%s (%s), expires in %s\n", *tenant, *user, *role, *ttl)
	case "show":
		token := loadToken()
		if token == "" {
			fmt.Println("No token saved")
			return nil
		}
		fmt.Println(token)
	case "clear":
		_ = os.Remove(tokenFile())
		fmt.Println("✓ Token cleared")
	default:
		return fmt.Errorf("unknown token command: %s", args[0])
	}
	return nil
}

// Product commands
func handleProducts(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: grcctl products <list|get|deactivate>")
		return nil
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		all := fs.Bool("all", false, "include inactive products")
		_ = fs.Parse(args[1:])
		path := "/api/products"
		if *all {
			path += "?all=true"
		}
		var products []map[string]any
		if err := c.do(http.MethodGet, path, nil, &products); err != nil {
			return err
		}
		table([]string{"CODE", "NAME", "ACTIVE", "ID"}, products, "code", "name.en", "isActive", "id")
	case "get":
		return c.show(http.MethodGet, "/api/products/"+arg(args, 1), nil)
	case "deactivate":
		return c.show(http.MethodPost, "/api/products/"+arg(args, 1)+"/deactivate", nil)
	default:
		return fmt.Errorf("unknown products command: %s", args[0])
	}
	return nil
}

// Subscription commands
func handleSubscription(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: grcctl subscription <current|list|subscribe|activate|cancel|upgrade|past-due|renew>")
		return nil
	}
	base := "/api/subscriptions"
	switch args[0] {
	case "current":
		return c.show(http.MethodGet, base+"/current", nil)
	case "list":
		var subs []map[string]any
		if err := c.do(http.MethodGet, base, nil, &subs); err != nil {
			return err
		}
		table([]string{"ID", "PRODUCT", "STATUS", "START", "END"}, subs, "id", "productId", "status", "startDate", "endDate")
	case "subscribe":
		fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
		product := fs.String("product", "", "product code or id")
		plan := fs.String("plan", "", "pricing plan id")
		autoRenew := fs.Bool("auto-renew", false, "renew automatically")
		_ = fs.Parse(args[1:])
		if *product == "" {
			fs.PrintDefaults()
			return errUsage
		}
		return c.show(http.MethodPost, base, map[string]any{
			"productId": *product, "pricingPlanId": *plan, "autoRenew": *autoRenew,
		})
	case "activate":
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/activate", nil)
	case "past-due":
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/past-due", nil)
	case "cancel":
		fs := flag.NewFlagSet("cancel", flag.ExitOnError)
		reason := fs.String("reason", "", "cancellation reason")
		_ = fs.Parse(flagArgs(args))
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/cancel", map[string]any{"reason": *reason})
	case "upgrade":
		fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
		product := fs.String("product", "", "target product code or id")
		plan := fs.String("plan", "", "target pricing plan id")
		carry := fs.Bool("carry-over", false, "keep current quota usage")
		_ = fs.Parse(flagArgs(args))
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/upgrade", map[string]any{
			"productId": *product, "pricingPlanId": *plan, "carryOverUsage": *carry,
		})
	case "renew":
		fs := flag.NewFlagSet("renew", flag.ExitOnError)
		end := fs.String("end", "", "new end date (RFC 3339)")
		_ = fs.Parse(flagArgs(args))
		body := map[string]any{}
		if *end != "" {
			body["endDate"] = *end
		}
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/renew", body)
	default:
		return fmt.Errorf("unknown subscription command: %s", args[0])
	}
	return nil
}

// Quota commands
func handleQuota(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: grcctl quota <list|get|check|increment|decrement|reset> [type] [-amount n]")
		return nil
	}
	switch args[0] {
	case "list":
		var statuses []map[string]any
		if err := c.do(http.MethodGet, "/api/quotas", nil, &statuses); err != nil {
			return err
		}
		table([]string{"TYPE", "USAGE", "LIMIT", "PERCENT", "EXCEEDED"}, statuses,
			"quotaType", "currentUsage", "limit", "percentage", "isExceeded")
	case "get":
		return c.show(http.MethodGet, "/api/quotas/"+arg(args, 1), nil)
	case "check", "increment", "decrement":
		fs := flag.NewFlagSet(args[0], flag.ExitOnError)
		amount := fs.Float64("amount", 1, "amount")
		_ = fs.Parse(flagArgs(args))
		return c.show(http.MethodPost, "/api/quotas/"+arg(args, 1)+"/"+args[0], map[string]any{"amount": *amount})
	case "reset":
		return c.show(http.MethodPost, "/api/quotas/"+arg(args, 1)+"/reset", nil)
	default:
		return fmt.Errorf("unknown quota command: %s", args[0])
	}
	return nil
}

// Risk commands
func handleRisk(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: grcctl risk <list|summary|create|get|assess|treat|accept|close>")
		return nil
	}
	base := "/api/risks"
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		status := fs.String("status", "", "filter by status")
		level := fs.String("level", "", "filter by level")
		_ = fs.Parse(args[1:])
		q := url.Values{}
		if *status != "" {
			q.Set("status", *status)
		}
		if *level != "" {
			q.Set("level", *level)
		}
		path := base
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var risks []map[string]any
		if err := c.do(http.MethodGet, path, nil, &risks); err != nil {
			return err
		}
		table([]string{"CODE", "TITLE", "STATUS", "INHERENT", "RESIDUAL", "ID"}, risks,
			"code", "title.en", "status", "inherentLevel", "residualLevel", "id")
	case "summary":
		return c.show(http.MethodGet, base+"/summary", nil)
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		code := fs.String("code", "", "risk code")
		titleEn := fs.String("title-en", "", "English title")
		titleAr := fs.String("title-ar", "", "Arabic title")
		category := fs.String("category", "", "category")
		owner := fs.String("owner", "", "owner user id")
		_ = fs.Parse(args[1:])
		return c.show(http.MethodPost, base, map[string]any{
			"code":        *code,
			"title":       map[string]string{"en": *titleEn, "ar": *titleAr},
			"category":    *category,
			"ownerUserId": *owner,
		})
	case "get":
		return c.show(http.MethodGet, base+"/"+arg(args, 1), nil)
	case "assess", "treat":
		fs := flag.NewFlagSet(args[0], flag.ExitOnError)
		p := fs.Int("p", 0, "probability 1-5")
		i := fs.Int("i", 0, "impact 1-5")
		strategy := fs.String("strategy", "Mitigate", "treatment strategy (treat only)")
		_ = fs.Parse(flagArgs(args))
		body := map[string]any{"probability": *p, "impact": *i}
		if args[0] == "treat" {
			body["strategy"] = *strategy
		}
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/"+args[0], body)
	case "accept", "close":
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/"+args[0], nil)
	default:
		return fmt.Errorf("unknown risk command: %s", args[0])
	}
	return nil
}

// Task commands
func handleTask(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: grcctl task <list|create|get|start|complete|reject|cancel|reassign>")
		return nil
	}
	base := "/api/tasks"
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		assignee := fs.String("assignee", "", "assignee user id, or me")
		entityType := fs.String("entity-type", "", "entity type")
		entityID := fs.String("entity-id", "", "entity id")
		status := fs.String("status", "", "status")
		_ = fs.Parse(args[1:])
		q := url.Values{}
		for k, v := range map[string]string{"assignee": *assignee, "entityType": *entityType, "entityId": *entityID, "status": *status} {
			if v != "" {
				q.Set(k, v)
			}
		}
		path := base
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var tasks []map[string]any
		if err := c.do(http.MethodGet, path, nil, &tasks); err != nil {
			return err
		}
		table([]string{"ID", "ENTITY", "TITLE", "ASSIGNEE", "STATUS"}, tasks,
			"id", "entityId", "title.en", "assignedToUserId", "status")
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		entityType := fs.String("entity-type", "Risk", "Risk, Audit, ActionPlan or Policy")
		entityID := fs.String("entity-id", "", "entity id")
		titleEn := fs.String("title-en", "", "English title")
		titleAr := fs.String("title-ar", "", "Arabic title")
		assignee := fs.String("assignee", "", "assignee user id")
		_ = fs.Parse(args[1:])
		return c.show(http.MethodPost, base, map[string]any{
			"entityType":       *entityType,
			"entityId":         *entityID,
			"title":            map[string]string{"en": *titleEn, "ar": *titleAr},
			"assignedToUserId": *assignee,
		})
	case "get":
		return c.show(http.MethodGet, base+"/"+arg(args, 1), nil)
	case "start":
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/start", nil)
	case "complete":
		fs := flag.NewFlagSet("complete", flag.ExitOnError)
		comments := fs.String("comments", "", "approval comments")
		_ = fs.Parse(flagArgs(args))
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/complete", map[string]any{"comments": *comments})
	case "reject", "cancel":
		fs := flag.NewFlagSet(args[0], flag.ExitOnError)
		reason := fs.String("reason", "", "reason")
		_ = fs.Parse(flagArgs(args))
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/"+args[0], map[string]any{"reason": *reason})
	case "reassign":
		fs := flag.NewFlagSet("reassign", flag.ExitOnError)
		to := fs.String("to", "", "new assignee user id")
		_ = fs.Parse(flagArgs(args))
		return c.show(http.MethodPost, base+"/"+arg(args, 1)+"/reassign", map[string]any{"assignedToUserId": *to})
	default:
		return fmt.Errorf("unknown task command: %s", args[0])
	}
	return nil
}

// HTTP client
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient() *client {
	return &client{
		baseURL: getAPIURL(),
		token:   loadToken(),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends body as JSON and decodes a 2xx response into out
func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d %s): %s", apiErr.Error, resp.StatusCode, http.StatusText(resp.StatusCode), apiErr.Message)
		}
		return fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// show prints the response as indented JSON
func (c *client) show(method, path string, body any) error {
	var out json.RawMessage
	if err := c.do(method, path, body, &out); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, out, "", "  "); err != nil {
		return err
	}
	fmt.Println(buf.String())
	return nil
}

func table(headers []string, rows []map[string]any, fields ...string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(fields))
		for i, f := range fields {
			cells[i] = lookup(row, f)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
}

// lookup reads a dotted path such as "title.en"
func lookup(m map[string]any, path string) string {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[part]
	}
	if cur == nil {
		return "-"
	}
	return fmt.Sprint(cur)
}

// arg returns the positional argument at i or exits with usage
func arg(args []string, i int) string {
	if len(args) <= i || strings.HasPrefix(args[i], "-") {
		fmt.Fprintln(os.Stderr, "✗ missing argument")
		os.Exit(1)
	}
	return url.PathEscape(args[i])
}

// flagArgs returns the flags following "<subcommand> <id>"
func flagArgs(args []string) []string {
	if len(args) < 2 {
		return nil
	}
	return args[2:]
}

// Helper functions
func getAPIURL() string {
	if u := os.Getenv("GRCCTL_API"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".grcctl", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	if t := os.Getenv("GRCCTL_TOKEN"); t != "" {
		return t
	}
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func printUsage() {
	fmt.Print(`grcctl - operator client for the grccore API

Usage:
  grcctl <command> [options]

Commands:
  token         Issue, show or clear the API token (issue signs with JWT_SECRET)
  products      Product catalog (list, get, deactivate)
  subscription  Tenant subscription (current, list, subscribe, activate, cancel, upgrade, past-due, renew)
  quota         Quota usage (list, get, check, increment, decrement, reset)
  risk          Risk register (list, summary, create, get, assess, treat, accept, close)
  task          Workflow tasks (list, create, get, start, complete, reject, cancel, reassign)
  help          Show this help message

Environment Variables:
  GRCCTL_API     API endpoint (default: http://localhost:8080)
  GRCCTL_TOKEN   Token to use instead of the saved one
  JWT_SECRET     Signing secret for "token issue"

Examples:
  grcctl token issue -tenant acme -user alice -role tenant_admin
  grcctl subscription subscribe -product STANDARD -plan standard-monthly
  grcctl quota increment Assessments -amount 2
  grcctl risk assess <risk-id> -p 4 -i 5
  grcctl task complete <task-id> -comments "approved"
`)
}
