// Package ai answers free-form shop questions with Gemini, backed by
// read-only tools over the inventory and sales data.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medshop/internal/apperr"
	"medshop/internal/config"
	"medshop/internal/inventory"
	"medshop/internal/models"
	"medshop/internal/reports"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const maxToolRounds = 5

var (
	ErrDisabled    = apperr.Unavailable("assistant is not configured")
	ErrUnknownTool = errors.New("unknown tool")
)

const systemPrompt = `Today is %s. You are the assistant of a medical shop.

RULES:
1. STOCK: For price, stock, expiry or supplier of a product, call 'check_inventory' and read the result. Never ask the user for product IDs.
2. ALERTS: For reorder questions use 'list_low_stock'. For expiry questions use 'list_expiring'.
3. SALES: For revenue or number of bills use 'get_sales_report' with dates in YYYY-MM-DD.
4. You cannot change data. If asked to, explain that changes are made in the shop screens.`

type Assistant struct {
	apiKey    string
	model     string
	inventory *inventory.Service
	reports   *reports.Service
	log       *zap.Logger
	now       func() time.Time
}

func NewAssistant(cfg config.AIConfig, inv *inventory.Service, rep *reports.Service, log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		inventory: inv,
		reports:   rep,
		log:       log.Named("ai"),
		now:       time.Now,
	}
}

func (a *Assistant) Enabled() bool { return a.apiKey != "" }

// Ask sends message to the model and resolves its tool calls until it
// answers in text or the round limit is hit.
func (a *Assistant) Ask(ctx context.Context, message string) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperr.Validation("message is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", fmt.Errorf("ai: new client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	model.Tools = tools()
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(systemPrompt, a.now().Format("2006-01-02")))},
	}

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("ai: send message: %w", err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return responseText(resp), nil
		}

		parts := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			result, err := a.ExecuteTool(ctx, call.Name, call.Args)
			if err != nil {
				a.log.Warn("Tool call failed", zap.String("tool", call.Name), zap.Error(err))
				result = map[string]any{"error": err.Error()}
			}
			parts = append(parts, genai.FunctionResponse{Name: call.Name, Response: result})
		}

		resp, err = session.SendMessage(ctx, parts...)
		if err != nil {
			return "", fmt.Errorf("ai: send tool results: %w", err)
		}
	}

	a.log.Warn("Tool round limit reached", zap.Int("rounds", maxToolRounds))
	return responseText(resp), nil
}

func tools() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "List products with ID, name, stock, price, expiry date and supplier. Optionally filter by name.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": {Type: genai.TypeString, Description: "Part of the product name"},
					},
				},
			},
			{
				Name:        "list_low_stock",
				Description: "List products at or below their minimum quantity.",
			},
			{
				Name:        "list_expiring",
				Description: "List products that expire within the given number of days.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"days": {Type: genai.TypeInteger, Description: "Window in days, default 30"},
					},
				},
			},
			{
				Name:        "get_sales_report",
				Description: "Get total revenue and number of bills for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD), inclusive"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
		},
	}}
}

// ExecuteTool runs one named tool. Results only hold JSON primitives, maps
// and slices so they convert cleanly into a function response.
func (a *Assistant) ExecuteTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch name {
	case "check_inventory":
		products, err := a.inventory.ListProducts(ctx, inventory.FilterAll)
		if err != nil {
			return nil, err
		}
		query := strings.ToLower(stringArg(args, "name"))
		list := make([]any, 0, len(products))
		for _, p := range products {
			if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
				continue
			}
			list = append(list, productView(p))
		}
		return map[string]any{"products": list}, nil

	case "list_low_stock":
		products, err := a.inventory.ListProducts(ctx, inventory.FilterLowStock)
		if err != nil {
			return nil, err
		}
		return map[string]any{"products": productViews(products)}, nil

	case "list_expiring":
		days := intArg(args, "days", 30)
		products, err := a.inventory.ExpiringWithin(ctx, days)
		if err != nil {
			return nil, err
		}
		return map[string]any{"days": days, "products": productViews(products)}, nil

	case "get_sales_report":
		start, err := time.Parse("2006-01-02", stringArg(args, "start_date"))
		if err != nil {
			return nil, errors.New("start_date must be in YYYY-MM-DD format")
		}
		end, err := time.Parse("2006-01-02", stringArg(args, "end_date"))
		if err != nil {
			return nil, errors.New("end_date must be in YYYY-MM-DD format")
		}
		report, err := a.reports.Sales(ctx, start, end.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"revenue":    report.TotalRevenue.InexactFloat64(),
			"bill_count": report.TotalBills,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func productView(p models.Product) map[string]any {
	v := map[string]any{
		"id":          int64(p.ID),
		"name":        p.Name,
		"stock":       int64(p.Quantity),
		"min_stock":   int64(p.MinQuantity),
		"price":       p.Price.InexactFloat64(),
		"expiry_date": time.Time(p.ExpiryDate).Format("2006-01-02"),
	}
	if p.Supplier != nil {
		v["supplier"] = p.Supplier.Name
	}
	if p.IsScheduled {
		v["schedule"] = p.ScheduleType
	}
	return v
}

func productViews(products []models.Product) []any {
	out := make([]any, 0, len(products))
	for _, p := range products {
		out = append(out, productView(p))
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// intArg reads a numeric argument. JSON numbers arrive as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0].FunctionCalls()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return "I could not find an answer to that."
}
