package generate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Table names in write order.
const (
	TableCustomers  = "customers"
	TableProducts   = "products"
	TableOrders     = "orders"
	TableOrderItems = "order_items"
	TablePayments   = "payments"
	TableSessions   = "sessions"
	TableEvents     = "events"
)

// TableNames lists every generated table.
var TableNames = []string{
	TableCustomers, TableProducts, TableOrders, TableOrderItems,
	TablePayments, TableSessions, TableEvents,
}

type tableSpec struct {
	name       string
	key        string
	columns    []string
	duplicates bool
}

var specs = map[string]tableSpec{
	TableCustomers: {name: TableCustomers, key: "customer_id", columns: []string{
		"customer_id", "email", "first_name", "last_name", "country", "city", "segment", "signup_date", "updated_at",
	}},
	TableProducts: {name: TableProducts, key: "product_id", columns: []string{
		"product_id", "sku", "name", "category", "brand", "unit_price", "cost", "is_active", "updated_at",
	}},
	TableOrders: {name: TableOrders, key: "order_id", duplicates: true, columns: []string{
		"order_id", "customer_id", "order_date", "status", "channel", "currency",
		"shipping_amount", "discount_amount", "order_total", "updated_at",
	}},
	TableOrderItems: {name: TableOrderItems, key: "order_item_id", columns: []string{
		"order_item_id", "order_id", "product_id", "quantity", "unit_price", "line_total",
	}},
	TablePayments: {name: TablePayments, key: "payment_id", duplicates: true, columns: []string{
		"payment_id", "order_id", "method", "status", "amount", "paid_at",
	}},
	TableSessions: {name: TableSessions, key: "session_id", columns: []string{
		"session_id", "customer_id", "anonymous_id", "started_at", "ended_at", "channel",
		"utm_source", "utm_campaign", "device", "landing_page",
	}},
	TableEvents: {name: TableEvents, key: "event_id", duplicates: true, columns: []string{
		"event_id", "session_id", "anonymous_id", "customer_id", "event_type", "event_at", "product_id", "page_url",
	}},
}

type weighted struct {
	value  string
	weight int
}

func (g *generator) pick(options []weighted) string {
	total := 0
	for _, o := range options {
		total += o.weight
	}
	n := g.rng.IntN(total)
	for _, o := range options {
		if n < o.weight {
			return o.value
		}
		n -= o.weight
	}
	return options[len(options)-1].value
}

func (g *generator) oneOf(values []string) string {
	return values[g.rng.IntN(len(values))]
}

func (g *generator) chance(p float64) bool {
	return p > 0 && g.rng.Float64() < p
}

// amount returns a random money value in [lo, hi] with cent precision.
func (g *generator) amount(lo, hi int64) decimal.Decimal {
	cents := lo*100 + g.rng.Int64N((hi-lo)*100+1)
	return decimal.New(cents, -2)
}

func (g *generator) newUUID() string {
	return uuid.Must(uuid.NewRandomFromReader(g.ids)).String()
}

var (
	firstNames = []string{"ava", "liam", "noah", "emma", "mia", "lucas", "zoe", "ethan", "aria", "leo", "nora", "omar", "ines", "yuki", "sofia", "mateo"}
	lastNames  = []string{"smith", "garcia", "chen", "muller", "rossi", "silva", "kowalski", "novak", "tanaka", "okafor", "dubois", "larsen", "haddad", "kim"}
	places     = []struct{ country, city string }{
		{"US", "new york"}, {"US", "austin"}, {"US", "seattle"}, {"GB", "london"}, {"GB", "manchester"},
		{"DE", "berlin"}, {"DE", "munich"}, {"FR", "paris"}, {"ES", "madrid"}, {"JP", "tokyo"},
	}
	segments = []weighted{{"consumer", 70}, {"business", 20}, {"vip", 10}}

	productNouns = []struct{ noun, category string }{
		{"sneakers", "footwear"}, {"boots", "footwear"}, {"hoodie", "apparel"}, {"jacket", "apparel"},
		{"t-shirt", "apparel"}, {"backpack", "accessories"}, {"wallet", "accessories"}, {"headphones", "electronics"},
		{"speaker", "electronics"}, {"lamp", "home"}, {"mug", "home"}, {"blanket", "home"},
	}
	productAdjectives = []string{"classic", "urban", "trail", "everyday", "premium", "compact", "vintage", "eco"}
	brands            = []string{"northwind", "acme", "lumen", "kestrel", "fjord", "tandem"}

	orderStatuses = []weighted{
		{"pending", 5}, {"paid", 10}, {"shipped", 20}, {"delivered", 50}, {"cancelled", 8}, {"returned", 7},
	}
	orderChannels  = []weighted{{"web", 55}, {"mobile", 35}, {"marketplace", 10}}
	paymentMethods = []weighted{{"card", 60}, {"paypal", 25}, {"bank_transfer", 10}, {"gift_card", 5}}

	sessionChannels = []weighted{{"organic", 35}, {"paid_search", 25}, {"email", 15}, {"social", 15}, {"direct", 10}}
	utmSources      = map[string]string{"paid_search": "google", "email": "newsletter", "social": "instagram"}
	campaigns       = []string{"spring_sale", "new_arrivals", "loyalty", "retargeting"}
	devices         = []weighted{{"desktop", 45}, {"mobile", 45}, {"tablet", 10}}
	funnel          = []string{"page_view", "product_view", "add_to_cart", "checkout", "purchase"}
)

type customer struct {
	id          int64
	anonymousID string
	signup      time.Time
}

type product struct {
	id    int64
	price decimal.Decimal
}

type session struct {
	id        string
	customer  int64 // 0 when anonymous
	anonymous string
	started   time.Time
	ended     time.Time
}

func (g *generator) customers() []record {
	var records []record
	for i := 1; i <= g.cfg.Customers; i++ {
		first, last := g.oneOf(firstNames), g.oneOf(lastNames)
		place := places[g.rng.IntN(len(places))]
		signup := g.cfg.StartDate.AddDate(0, 0, -g.rng.IntN(365))
		updated := signup.Add(time.Duration(g.rng.IntN(24*60)) * time.Minute)
		segment := g.pick(segments)

		c := customer{id: int64(i), anonymousID: g.newUUID(), signup: signup}
		g.customerList = append(g.customerList, c)

		email := fmt.Sprintf("%s.%s%d@example.com", first, last, i)
		row := func(city, country, segment string, updated time.Time) record {
			return record{
				intField(c.id), emailField(email), textField(titleCase.String(first)), textField(titleCase.String(last)),
				textField(country), textField(titleCase.String(city)), enumField(segment),
				dateField(signup), timeField(updated),
			}
		}
		records = append(records, row(place.city, place.country, segment, updated))

		if g.chance(g.cfg.SCDRate) {
			versions := 1 + g.rng.IntN(3)
			for v := 0; v < versions; v++ {
				updated = updated.AddDate(0, 0, 5+g.rng.IntN(40))
				next := places[g.rng.IntN(len(places))]
				if g.chance(0.5) {
					segment = g.pick(segments)
				}
				records = append(records, row(next.city, next.country, segment, updated))
				g.scdVersions++
			}
		}
	}
	return records
}

func (g *generator) products() []record {
	records := make([]record, 0, g.cfg.Products)
	for i := 1; i <= g.cfg.Products; i++ {
		noun := productNouns[g.rng.IntN(len(productNouns))]
		name := titleCase.String(g.oneOf(productAdjectives) + " " + noun.noun)
		price := g.amount(5, 250)
		margin := decimal.New(int64(40+g.rng.IntN(31)), -2)
		cost := price.Mul(margin).Round(2)
		updated := g.cfg.StartDate.Add(-time.Duration(g.rng.IntN(90*24)) * time.Hour)

		p := product{id: int64(i), price: price}
		g.productList = append(g.productList, p)

		records = append(records, record{
			intField(p.id), textField(fmt.Sprintf("SKU-%05d", i)), textField(name), textField(noun.category),
			textField(g.oneOf(brands)), moneyField(price), moneyField(cost), boolField(g.chance(0.9)),
			timeField(updated),
		})
	}
	return records
}

var (
	freeShippingAt = decimal.NewFromInt(75)
	shippingFee    = decimal.New(599, -2)
	discountShare  = decimal.New(10, -2)
)

// orders builds orders with their items, payments and purchase sessions.
func (g *generator) orders() (orders, items, payments []record) {
	window := g.cfg.Days * 24 * 60
	itemID, paymentID := int64(0), int64(0)

	for i := 1; i <= g.cfg.Orders; i++ {
		c := g.customerList[g.rng.IntN(len(g.customerList))]
		at := g.cfg.StartDate.Add(time.Duration(g.rng.IntN(window)) * time.Minute)
		status := g.pick(orderStatuses)
		channel := g.pick(orderChannels)

		subtotal := decimal.Zero
		lines := 1 + g.rng.IntN(4)
		for l := 0; l < lines; l++ {
			p := g.productList[g.rng.IntN(len(g.productList))]
			qty := int64(1 + g.rng.IntN(3))
			lineTotal := p.price.Mul(decimal.NewFromInt(qty))
			subtotal = subtotal.Add(lineTotal)

			productID := p.id
			if g.roll() {
				productID = int64(len(g.productList)) + 10000 + g.rng.Int64N(1000)
				g.noise[NoiseOrphans]++
			}
			itemID++
			items = append(items, record{
				intField(itemID), intField(int64(i)), intField(productID), intField(qty),
				moneyField(p.price), moneyField(lineTotal),
			})
		}

		shipping := decimal.Zero
		if subtotal.LessThan(freeShippingAt) {
			shipping = shippingFee
		}
		discount := decimal.Zero
		if g.chance(0.15) {
			discount = subtotal.Mul(discountShare).Round(2)
		}
		total := subtotal.Add(shipping).Sub(discount)
		updated := at.Add(time.Duration(1+g.rng.IntN(72)) * time.Hour)

		orders = append(orders, record{
			intField(int64(i)), intField(c.id), timeField(at), enumField(status), enumField(channel),
			textField("USD"), moneyField(shipping), moneyField(discount), moneyField(total), timeField(updated),
		})

		if status != "pending" {
			paidAt := at.Add(time.Duration(1+g.rng.IntN(30)) * time.Minute)
			method := g.pick(paymentMethods)
			if g.chance(0.08) {
				paymentID++
				payments = append(payments, record{
					intField(paymentID), intField(int64(i)), enumField(method), enumField("failed"),
					moneyField(total), timeField(paidAt.Add(-time.Minute)),
				})
			}
			paymentStatus := "captured"
			switch status {
			case "cancelled", "returned":
				paymentStatus = "refunded"
			case "paid":
				paymentStatus = "authorized"
			}
			paymentID++
			payments = append(payments, record{
				intField(paymentID), intField(int64(i)), enumField(method), enumField(paymentStatus),
				moneyField(total), timeField(paidAt),
			})
		}

		if g.chance(g.cfg.AttributedRate) {
			started := at.Add(-time.Duration(10+g.rng.IntN(6*60)) * time.Minute)
			g.sessionList = append(g.sessionList, session{
				customer:  c.id,
				anonymous: c.anonymousID,
				started:   started,
				ended:     at.Add(time.Duration(1+g.rng.IntN(5)) * time.Minute),
			})
			g.purchases[len(g.sessionList)-1] = true
		}
	}
	return orders, items, payments
}

// sessions adds browsing sessions and renders every session with its events.
func (g *generator) sessions() (sessions, events []record) {
	window := g.cfg.Days * 24 * 60
	for i := 0; i < g.cfg.Sessions; i++ {
		started := g.cfg.StartDate.Add(time.Duration(g.rng.IntN(window)) * time.Minute)
		s := session{
			started: started,
			ended:   started.Add(time.Duration(1+g.rng.IntN(45)) * time.Minute),
		}
		switch {
		case len(g.customerList) > 0 && !g.chance(g.cfg.AnonymousRate):
			c := g.customerList[g.rng.IntN(len(g.customerList))]
			s.customer, s.anonymous = c.id, c.anonymousID
		case len(g.customerList) > 0 && g.chance(0.5):
			// Known visitor that did not log in: stitchable by anonymous_id.
			s.anonymous = g.customerList[g.rng.IntN(len(g.customerList))].anonymousID
		default:
			s.anonymous = g.newUUID()
		}
		g.sessionList = append(g.sessionList, s)
	}

	eventID := int64(0)
	for i := range g.sessionList {
		s := &g.sessionList[i]
		s.id = fmt.Sprintf("S%07d", i+1)

		channel := g.pick(sessionChannels)
		source, campaign := utmSources[channel], ""
		if source != "" {
			campaign = g.oneOf(campaigns)
		}
		landing := "/"
		if len(g.productList) > 0 && g.chance(0.4) {
			landing = fmt.Sprintf("/products/%d", g.productList[g.rng.IntN(len(g.productList))].id)
		}
		customerField := nullField()
		if s.customer > 0 {
			customerField = intField(s.customer)
		}

		sessions = append(sessions, record{
			textField(s.id), customerField, textField(s.anonymous), timeField(s.started), timeField(s.ended),
			enumField(channel), textField(source), textField(campaign), enumField(g.pick(devices)), textField(landing),
		})

		steps := funnel[:min(1+g.rng.IntN(4), 4)]
		if g.purchases[i] {
			steps = funnel
		}
		span := s.ended.Sub(s.started)
		for step, eventType := range steps {
			eventID++
			at := s.started.Add(span * time.Duration(step) / time.Duration(len(steps)))

			sessionField := textField(s.id)
			if g.chance(g.cfg.UnstitchedRate) {
				sessionField = nullField()
			}
			eventCustomer := nullField()
			if s.customer > 0 && (eventType == "checkout" || eventType == "purchase") {
				eventCustomer = intField(s.customer)
			}
			productField, page := nullField(), "/"
			if eventType != "page_view" && len(g.productList) > 0 {
				p := g.productList[g.rng.IntN(len(g.productList))]
				productField = intField(p.id)
				page = fmt.Sprintf("/products/%d", p.id)
			}
			if eventType == "checkout" || eventType == "purchase" {
				page = "/" + eventType
			}

			events = append(events, record{
				intField(eventID), sessionField, textField(s.anonymous), eventCustomer,
				enumField(eventType), timeField(at), productField, textField(page),
			})
		}
	}
	return sessions, events
}
