package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ItemType discriminates the variants carried in Item
type ItemType string

// Item types
const (
	ItemTypeCard   ItemType = "card"
	ItemTypeInvite ItemType = "invite"
)

// CardItem is a business card purchase
type CardItem struct {
	Template string `json:"template,omitempty"`
}

// Validate checks the card item fields
func (c *CardItem) Validate() error {
	if len(c.Template) > 64 {
		return errors.New("card template name too long")
	}
	return nil
}

// InviteItem is the wedding invite form submitted with a purchase
type InviteItem struct {
	Template    string `json:"template"`
	Bride       string `json:"bride"`
	Groom       string `json:"groom"`
	WeddingDate string `json:"weddingDate,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Validate checks the invite item fields
func (i *InviteItem) Validate() error {
	if strings.TrimSpace(i.Bride) == "" || strings.TrimSpace(i.Groom) == "" {
		return errors.New("invite requires both names")
	}
	if strings.TrimSpace(i.Template) == "" {
		return errors.New("invite template is required")
	}
	if len(i.Message) > 2000 {
		return errors.New("invite message too long")
	}
	return nil
}

// Item is one cart line. Exactly one of Card or Invite is set, matching Type.
type Item struct {
	Type   ItemType
	Amount int64
	Card   *CardItem
	Invite *InviteItem
}

type itemWire struct {
	ItemType ItemType        `json:"itemType"`
	Amount   int64           `json:"amount"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the item with its itemType discriminator
func (it Item) MarshalJSON() ([]byte, error) {
	var data interface{}
	switch it.Type {
	case ItemTypeCard:
		data = it.Card
	case ItemTypeInvite:
		data = it.Invite
	default:
		return nil, fmt.Errorf("unknown item type %q", it.Type)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(itemWire{ItemType: it.Type, Amount: it.Amount, Data: raw})
}

// UnmarshalJSON decodes the variant selected by itemType
func (it *Item) UnmarshalJSON(b []byte) error {
	var w itemWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	it.Type = w.ItemType
	it.Amount = w.Amount
	it.Card = nil
	it.Invite = nil

	switch w.ItemType {
	case ItemTypeCard:
		it.Card = &CardItem{}
		if len(w.Data) > 0 && string(w.Data) != "null" {
			return json.Unmarshal(w.Data, it.Card)
		}
	case ItemTypeInvite:
		if len(w.Data) > 0 && string(w.Data) != "null" {
			it.Invite = &InviteItem{}
			return json.Unmarshal(w.Data, it.Invite)
		}
	default:
		return fmt.Errorf("unknown item type %q", w.ItemType)
	}
	return nil
}

// Validate checks the item against its variant's rules
func (it *Item) Validate() error {
	if it.Amount < 0 {
		return errors.New("item amount must not be negative")
	}
	switch it.Type {
	case ItemTypeCard:
		if it.Card == nil {
			return nil
		}
		return it.Card.Validate()
	case ItemTypeInvite:
		// an invite item without content only unlocks
		if it.Invite == nil {
			return nil
		}
		return it.Invite.Validate()
	}
	return fmt.Errorf("unknown item type %q", it.Type)
}

// Target maps the item to the entitlement it unlocks
func (it *Item) Target() UnlockTarget {
	switch it.Type {
	case ItemTypeCard:
		return UnlockCard
	case ItemTypeInvite:
		return UnlockInvite
	}
	return ""
}

// Items is the cart payload persisted with a payment record as JSON
type Items []Item

// Total sums the item amounts
func (items Items) Total() int64 {
	var total int64
	for _, it := range items {
		total += it.Amount
	}
	return total
}

// Value implements driver.Valuer
func (items Items) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	// lib/pq sends []byte as bytea, which jsonb rejects
	return string(b), nil
}

// Scan implements sql.Scanner
func (items *Items) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*items = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported item_data type %T", src)
	}
	return json.Unmarshal(b, items)
}
