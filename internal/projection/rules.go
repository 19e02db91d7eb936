package projection

import (
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

func projectInvoice(id string, raw entity.Raw) Projection {
	number := str(raw, "invoice_number", "number")
	clientName := str(raw, "client_name", "client.name", "customer_name")
	status := str(raw, "status")
	amount := num(raw, "total_amount", "total", "amount")
	currency := str(raw, "currency")
	issued := dateOnly(str(raw, "issue_date", "date", "created_at"))
	due := dateOnly(str(raw, "due_date"))

	title := join(" ", "Invoice", orID(number, id))
	return Projection{
		Text: join(" ",
			number, clientName, status,
			formatAmount(amount), currency, str(raw, "description", "notes"),
		),
		Metadata: entity.Metadata{
			Title:       title,
			Subtitle:    clientName,
			Description: join(" · ", status, join(" ", formatAmount(amount), currency), due),
			URL:         "/invoices/" + id,
			Status:      status,
			Amount:      amount,
			Currency:    currency,
			Date:        issued,
			Fields:      fields("number", number, "due_date", due),
		},
	}
}

func projectExpense(id string, raw entity.Raw) Projection {
	desc := str(raw, "description", "title")
	vendor := str(raw, "vendor", "merchant", "supplier_name")
	category := str(raw, "category", "category.name")
	status := str(raw, "status")
	amount := num(raw, "amount", "total")
	currency := str(raw, "currency")
	date := dateOnly(str(raw, "expense_date", "date", "created_at"))

	return Projection{
		Text: join(" ",
			desc, vendor, category, status,
			formatAmount(amount), currency,
		),
		Metadata: entity.Metadata{
			Title:       orID(desc, "Expense "+id),
			Subtitle:    join(" · ", vendor, category),
			Description: join(" · ", status, join(" ", formatAmount(amount), currency)),
			URL:         "/expenses/" + id,
			Status:      status,
			Amount:      amount,
			Currency:    currency,
			Date:        date,
			Fields:      fields("vendor", vendor, "category", category),
		},
	}
}

func projectClient(id string, raw entity.Raw) Projection {
	name := str(raw, "name", "company_name")
	company := str(raw, "company")
	email := str(raw, "email")
	phone := str(raw, "phone")
	taxID := str(raw, "tax_id", "vat_number")
	city := str(raw, "city", "address.city")
	country := str(raw, "country", "address.country")

	return Projection{
		Text: join(" ", name, company, email, phone, taxID, city, country),
		Metadata: entity.Metadata{
			Title:       orID(name, "Client "+id),
			Subtitle:    join(" · ", company, email),
			Description: join(", ", city, country),
			URL:         "/clients/" + id,
			Status:      str(raw, "status"),
			Date:        dateOnly(str(raw, "created_at")),
			Fields:      fields("email", email, "phone", phone, "tax_id", taxID),
		},
	}
}

func projectReport(id string, raw entity.Raw) Projection {
	title := str(raw, "title", "name")
	kind := str(raw, "report_type", "type")
	period := join(" - ", dateOnly(str(raw, "period_start", "start_date")), dateOnly(str(raw, "period_end", "end_date")))
	status := str(raw, "status")

	return Projection{
		Text: join(" ", title, kind, period, status, str(raw, "description")),
		Metadata: entity.Metadata{
			Title:       orID(title, "Report "+id),
			Subtitle:    kind,
			Description: join(" · ", period, status),
			URL:         "/reports/" + id,
			Status:      status,
			Date:        dateOnly(str(raw, "generated_at", "created_at")),
			Fields:      fields("report_type", kind),
		},
	}
}

func projectEmployee(id string, raw entity.Raw) Projection {
	name := join(" ", str(raw, "first_name"), str(raw, "last_name"))
	if name == "" {
		name = str(raw, "name", "full_name")
	}
	number := str(raw, "employee_number", "employee_id")
	email := str(raw, "email")
	position := str(raw, "position", "job_title")
	department := str(raw, "department", "department.name")
	status := str(raw, "status", "employment_status")

	return Projection{
		Text: join(" ", name, number, email, position, department, status),
		Metadata: entity.Metadata{
			Title:       orID(name, "Employee "+id),
			Subtitle:    join(" · ", position, department),
			Description: email,
			URL:         "/employees/" + id,
			Status:      status,
			Date:        dateOnly(str(raw, "hire_date", "start_date")),
			Fields:      fields("employee_number", number, "email", email),
		},
	}
}

func orID(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
