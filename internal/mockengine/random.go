package mockengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jaswdr/faker"

	"github.com/periplon/metis/internal/apperr"
)

var fake = faker.New()

// generateRandom dispatches cfg.FakerType to a jaswdr/faker generator.
// FakerType accepts an optional ":param" suffix, e.g. "number:1-100" or
// "words:5".
func (e *Engine) generateRandom(cfg *MockConfig) (any, error) {
	kind, param, _ := strings.Cut(cfg.FakerType, ":")

	switch kind {
	case "name", "person_name":
		return fake.Person().Name(), nil
	case "first_name":
		return fake.Person().FirstName(), nil
	case "last_name":
		return fake.Person().LastName(), nil
	case "email":
		return fake.Internet().Email(), nil
	case "username":
		return fake.Internet().User(), nil
	case "url":
		return fake.Internet().URL(), nil
	case "domain":
		return fake.Internet().Domain(), nil
	case "ipv4":
		return fake.Internet().Ipv4(), nil
	case "uuid":
		return fake.UUID().V4(), nil
	case "phone":
		return fake.Phone().Number(), nil
	case "address":
		return fake.Address().Address(), nil
	case "city":
		return fake.Address().City(), nil
	case "country":
		return fake.Address().Country(), nil
	case "company":
		return fake.Company().Name(), nil
	case "job_title":
		return fake.Company().JobTitle(), nil
	case "word":
		return fake.Lorem().Word(), nil
	case "sentence":
		return fake.Lorem().Sentence(10), nil
	case "paragraph":
		return fake.Lorem().Paragraph(3), nil
	case "words":
		n := 5
		if param != "" {
			if v, err := strconv.Atoi(param); err == nil {
				n = v
			}
		}
		return strings.Join(fake.Lorem().Words(n), " "), nil
	case "bool", "boolean":
		return fake.Bool(), nil
	case "number", "int":
		lo, hi := 0, 1000
		if param != "" {
			if a, b, ok := strings.Cut(param, "-"); ok {
				if v, err := strconv.Atoi(a); err == nil {
					lo = v
				}
				if v, err := strconv.Atoi(b); err == nil {
					hi = v
				}
			}
		}
		return fake.IntBetween(lo, hi), nil
	case "float":
		return fake.Float64(2, 0, 1000), nil
	case "date":
		return fake.Time().RecentTime().Format("2006-01-02"), nil
	case "datetime":
		return fake.Time().RecentTime().Format("2006-01-02T15:04:05Z07:00"), nil
	case "credit_card_number":
		return fake.Payment().CreditCardNumber(), nil
	default:
		return nil, &apperr.Validation{Field: "faker_type", Reason: fmt.Sprintf("unknown faker_type %q", kind)}
	}
}
