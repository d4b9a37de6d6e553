package firestore

import (
	"github.com/m-mizutani/fireconf"
)

// IndexConfig returns the composite indexes the queries of this package need. prefix must match the
// collection prefix the repository runs with.
func IndexConfig(prefix string) *fireconf.Config {
	name := func(c string) string {
		if prefix != "" {
			return prefix + "_" + c
		}
		return c
	}
	asc := func(path string) fireconf.IndexField {
		return fireconf.IndexField{Path: path, Order: fireconf.OrderAscending}
	}

	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: name(collIncidents),
				Indexes: []fireconf.Index{
					// List: CreatedAt window paged by (CreatedAt, ID)
					{Fields: []fireconf.IndexField{asc("CreatedAt"), asc("ID")}},
					// List filtered by case
					{Fields: []fireconf.IndexField{asc("CaseID"), asc("CreatedAt"), asc("ID")}},
				},
			},
			{
				Name: name(collAuditLog),
				Indexes: []fireconf.Index{
					{Fields: []fireconf.IndexField{asc("Timestamp"), asc("ID")}},
					{Fields: []fireconf.IndexField{asc("TableName"), asc("Timestamp"), asc("ID")}},
				},
			},
			{
				Name: name(collCases),
				Indexes: []fireconf.Index{
					{Fields: []fireconf.IndexField{asc("State"), asc("ID")}},
				},
			},
		},
	}
}
