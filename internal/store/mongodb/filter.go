package mongodb

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func bsonD(key string, v any) bson.D { return bson.D{{Key: key, Value: v}} }

// listQuery builds the filter and find options for a newest-first listing
// over field.
func listQuery(field string, opts domain.ListOpts) (bson.M, *options.FindOptions) {
	filter := bson.M{}
	window := bson.M{}
	if opts.Since != nil {
		window["$gte"] = *opts.Since
	}
	if opts.Until != nil {
		window["$lte"] = *opts.Until
	}
	if len(window) > 0 {
		filter[field] = window
	}

	find := options.Find().SetSort(bson.D{{Key: field, Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		find.SetSkip(int64(opts.Offset))
	}
	return filter, find
}
