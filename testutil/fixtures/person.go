package fixtures

import (
	"fmt"
	"time"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// Address is an optional child of Person, used to exercise nil member dereferences.
type Address struct {
	City string
}

// Person is the entity used throughout the tests.
type Person struct {
	entitystore.EventRecording `msgpack:"-" bson:"-"`

	ID      string   `validate:"required"                  msgpack:"id"      bson:"_id"`
	Name    string   `validate:"required,min=2"            msgpack:"name"    bson:"name"`
	Age     int      `validate:"gte=0,lte=150"             msgpack:"age"     bson:"age"`
	Email   *string  `validate:"omitempty,email"           msgpack:"email"   bson:"email,omitempty"`
	Active  bool     `msgpack:"active"                     bson:"active"`
	Address *Address `msgpack:"address"                    bson:"address,omitempty"`
	Version int64    `msgpack:"version"                    bson:"version"`

	Audit entitystore.AuditState `msgpack:"-" bson:"-"`
}

func (p *Person) EntityID() string {
	return p.ID
}

func (p *Person) AuditState() *entitystore.AuditState {
	return &p.Audit
}

func (p *Person) EntityVersion() int64 {
	return p.Version
}

func (p *Person) SetEntityVersion(version int64) {
	p.Version = version
}

// PersonDTO is a second shape of a person, the target of specification translation.
type PersonDTO struct {
	Key      string
	FullName string
	Years    int
}

// PersonRenamed is a domain event recorded by Person.Rename.
type PersonRenamed struct {
	PersonID string    `json:"personId"`
	NewName  string    `json:"newName"`
	At       time.Time `json:"at"`
}

func (e PersonRenamed) EventType() string     { return "PersonRenamed" }
func (e PersonRenamed) OccurredAt() time.Time { return e.At }
func (e PersonRenamed) AggregateID() string   { return e.PersonID }

// Rename changes the name and records PersonRenamed.
func (p *Person) Rename(name string, at time.Time) {
	p.Name = name
	p.RecordEvent(PersonRenamed{PersonID: p.ID, NewName: name, At: at})
}

// Members of Person.
var (
	PersonID      = entitystore.NewField("ID", func(p *Person) string { return p.ID })
	PersonName    = entitystore.NewField("Name", func(p *Person) string { return p.Name })
	PersonAge     = entitystore.NewField("Age", func(p *Person) int { return p.Age })
	PersonEmail   = entitystore.NewField("Email", func(p *Person) *string { return p.Email })
	PersonActive  = entitystore.NewField("Active", func(p *Person) bool { return p.Active })
	PersonCity    = entitystore.NewField("Address.City", func(p *Person) string { return p.Address.City })
	PersonVersion = entitystore.NewField("Version", func(p *Person) int64 { return p.Version })
)

// Members of PersonDTO.
var (
	DTOKey      = entitystore.NewField("Key", func(d *PersonDTO) string { return d.Key })
	DTOFullName = entitystore.NewField("FullName", func(d *PersonDTO) string { return d.FullName })
	DTOYears    = entitystore.NewField("Years", func(d *PersonDTO) int { return d.Years })
)

// PersonSchema returns a schema over all Person members.
func PersonSchema() *entitystore.Schema[*Person] {
	schema, err := entitystore.NewSchema([]entitystore.FieldAccessor[*Person]{
		PersonID, PersonName, PersonAge, PersonEmail, PersonActive, PersonCity, PersonVersion,
	})
	if err != nil {
		panic(err)
	}

	return schema
}

// PersonToDTO maps every Person member that PersonDTO has.
func PersonToDTO() *entitystore.Mapping[*Person, *PersonDTO] {
	m := entitystore.NewMapping[*Person, *PersonDTO]()
	entitystore.MapField(m, PersonID, DTOKey)
	entitystore.MapField(m, PersonName, DTOFullName)
	entitystore.MapField(m, PersonAge, DTOYears)

	return m
}

// DTOFromPerson converts a Person.
func DTOFromPerson(p *Person) *PersonDTO {
	return &PersonDTO{Key: p.ID, FullName: p.Name, Years: p.Age}
}

// NewPerson creates an active person without email and address.
func NewPerson(id, name string, age int) *Person {
	return &Person{ID: id, Name: name, Age: age, Active: true}
}

// People creates n people with ids p01..pNN, names "Person 01".. and ages 1..n.
func People(n int) []*Person {
	people := make([]*Person, 0, n)
	for i := 1; i <= n; i++ {
		people = append(people, NewPerson(fmt.Sprintf("p%02d", i), fmt.Sprintf("Person %02d", i), i))
	}

	return people
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
