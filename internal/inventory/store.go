package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Row is one collection entry: which printing a user holds and how many
// copies. PurchasePrice is zero when the user never recorded one.
type Row struct {
	CardID        string
	Quantity      int64
	PurchasePrice decimal.Decimal
}

// Store reads collection rows from MongoDB. It is the inventory-store
// collaborator of the valuation endpoints; writes happen elsewhere.
type Store struct {
	db *mongo.Database
}

func New(client *mongo.Client) *Store {
	return &Store{db: client.Database("bigdeck")}
}

// ListUserRows returns every collection row for one user.
func (s *Store) ListUserRows(ctx context.Context, userID uuid.UUID) ([]Row, error) {
	collection := s.db.Collection("collection_cards")
	cursor, err := collection.Find(ctx, bson.M{"user_id": userID.String()})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(docs))
	for _, doc := range docs {
		row := Row{Quantity: 1}
		if id, ok := doc["card_uuid"].(string); ok {
			row.CardID = id
		}
		switch qty := doc["quantity"].(type) {
		case int32:
			row.Quantity = int64(qty)
		case int64:
			row.Quantity = qty
		}
		if raw, ok := doc["purchase_price"].(string); ok {
			row.PurchasePrice = stringToDecimal(raw)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// stringToDecimal converts string to decimal from MongoDB retrieval
func stringToDecimal(s string) decimal.Decimal {
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return dec
}
