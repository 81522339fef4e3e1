// Package mongoengine implements entitystore.Provider on MongoDB.
//
// Specifications are lowered to BSON filters: And, Or and Not become $and, $or and $nor,
// comparisons become $eq, $ne, $gt, $gte, $lt, $lte and $in, Contains and StartsWith become
// anchored or unanchored $regex matches of the quoted text. Missing and null values behave like
// nil members in memory: they equal only nil and differ from everything else.
//
// Entities are stored as documents using their bson tags, a Document describes where the
// queryable members live:
//
//	people := mongoengine.Document[*Person]{
//		New:        func() *Person { return &Person{} },
//		ID:         func(p *Person) any { return p.ID },
//		Keys:       map[string]string{"Name": "name", "Age": "age", "Address.City": "address.city"},
//		VersionKey: "version",
//	}
//	provider, err := mongoengine.NewProvider(people, mongoengine.WrapCollection(db.Collection("people")))
package mongoengine
