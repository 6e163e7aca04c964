// Package models defines the domain models the rngenius client mirrors from
// the backend.
//
// # Entities
//
// The backend owns every entity. The client only holds denormalized
// snapshots of them:
//   - Generator: a shared decision topic with options and participants
//   - Option: a choice that carries one or more category labels
//   - Participant: a user taking part in a generator, with one Selection per option
//   - Selection: a participant's excluded/favorised state for one option
//   - Result: a historical record of one generated option
//   - User: the account behind an owner, participant or result
//
// # Derived data
//
// Categories are never stored. Generator.Categories recomputes them as the
// de-duplicated union of the options' labels every time they are needed.
//
// # Wire format
//
// JSON tags follow the backend contract verbatim (iconNumber, favorised,
// dateTime, generatorId). Result timestamps arrive without a zone. See
// Timestamp.
package models
