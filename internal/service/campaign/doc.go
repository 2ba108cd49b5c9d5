// Package campaign implements DM campaign lifecycle management: creating a
// draft with its steps and recipients, then starting, pausing and resuming it.
//
// Progression of individual recipients belongs to the progression package;
// this package only seeds the first schedule when a campaign starts. It
// depends on the Repository interface defined here and never imports
// net/http or database/sql.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
