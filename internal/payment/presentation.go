package payment

import (
	"bytes"
	"html/template"
	"net/url"
	"sort"
	"strings"
)

const DefaultPayLabel = "Pay Now"

// Presentation is what the billing platform shows the payer after
// StartPayment. On failure only Message and Reason are set; both are safe to
// display.
type Presentation struct {
	OK          bool   `json:"ok"`
	InvoiceID   string `json:"invoice_id"`
	OrderID     string `json:"order_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Reused      bool   `json:"reused,omitempty"`
	Message     string `json:"message,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// browsers drop the action's query string on GET submit, so it is carried as
// hidden fields
const payFormTemplate = `<form method="get" action="{{.Action}}">
{{- range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}" />{{end -}}
<input type="submit" value="{{.Label}}" /></form>`

var payFormTpl = template.Must(template.New("pay-form").Parse(payFormTemplate))

type formField struct {
	Name  string
	Value string
}

type payForm struct {
	Action string
	Fields []formField
	Label  string
}

// Render returns a form that sends the payer to the hosted payment page. A
// failed presentation renders its message instead.
func (p Presentation) Render(label string) (string, error) {
	if !p.OK {
		return template.HTMLEscapeString(p.Message), nil
	}
	if strings.TrimSpace(label) == "" {
		label = DefaultPayLabel
	}

	u, err := url.Parse(p.RedirectURL)
	if err != nil {
		return "", err
	}
	form := payForm{Label: label}
	for name, values := range u.Query() {
		for _, v := range values {
			form.Fields = append(form.Fields, formField{Name: name, Value: v})
		}
	}
	sortFields(form.Fields)
	u.RawQuery = ""
	form.Action = u.String()

	var buf bytes.Buffer
	if err := payFormTpl.Execute(&buf, form); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sortFields(fields []formField) {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
}
