package validators

import "go.mongodb.org/mongo-driver/bson"

const secondsPerDay = 24 * 60 * 60

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"username",
			"room_id",
			"date",
			"start_time",
			"end_time",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"username": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"room_id": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"start_time": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  0,
				"maximum":  secondsPerDay - 1,
			},

			"end_time": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  secondsPerDay,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
	// start strictly before end
	"$expr": bson.M{"$lt": bson.A{"$start_time", "$end_time"}},
}

// SlotGuardValidator covers the per room and date documents that serialize
// conflicting writes.
var SlotGuardValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "room_id", "date", "version"},
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"room_id":    bson.M{"bsonType": []string{"int", "long"}},
			"date":       bson.M{"bsonType": "string"},
			"version":    bson.M{"bsonType": []string{"int", "long"}},
			"updated_at": bson.M{"bsonType": "date"},
		},
	},
}
