package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WeatherLookup is an immutable record of one weather request made for a user.
// Summary holds the text that was delivered, which is either the formatted
// report or the failure description when Failed is set.
type WeatherLookup struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      int64              `bson:"user_id" json:"userId"`
	City        string             `bson:"city" json:"city"`
	Summary     string             `bson:"summary" json:"summary"`
	Failed      bool               `bson:"failed" json:"failed"`
	RequestedAt time.Time          `bson:"requested_at" json:"requestTime"`
}
