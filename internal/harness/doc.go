// Package harness runs identity resolution scenarios end to end.
//
// A scenario describes a contact book configuration, a set of in-memory
// sources, a sequence of import runs and the assertions that must hold
// afterwards. The harness drives the real importer against an in-memory
// archive, so every scenario exercises driver records, resolution, merging,
// event sealing and persistence together.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	index:
//	  policy: whitelist
//	  indexable: [names, phones, emails]
//	conflict: keep-local
//	timezone: UTC
//	me:
//	  name: Me Myself
//	  phones: ["+15550000000"]
//	sources:
//	  phonebook:
//	    - {stream: contact, id: 0, values: {names: {Joe: {}}, phones: {"555-1234": {}}}}
//	  voice:
//	    - {stream: sms, timestamp: 1700000000, sender: "555-1234", message: hi}
//	runs:
//	  - import: [phonebook, voice]
//	    expect: {contacts: 2, events: 1, inserted: 1}
//	assertions:
//	  - type: same_contact
//	    identifiers: ["phones:555-1234", "names:Joe"]
//	  - type: timeline_contains
//	    line: "2023-11-14 22:13:20 SMS: Joe -> Me: hi"
//	  - type: final_state
//	    table: runs
//	    where: { id: run-1 }
//	    expect: { events: 1 }
//
// Source records use the same shape drivers emit. Mapping keys that look
// like numbers (bare phone numbers) must be quoted.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - contact_count: the book holds exactly count contacts
//   - contact: the contact found by field/value holds the listed values
//   - same_contact: every identifier resolves to one contact
//   - distinct_contacts: every identifier resolves to a different contact
//   - event_count: exactly count archived events (of stream, if given)
//   - timeline_contains: a rendered timeline line is present
//   - final_state: queries an archive table and verifies expected values
//
// # Deterministic Testing
//
// Run ids come from testutil.SequentialRunIDs ("run-1", "run-2", ...) and
// run timestamps from testutil.DeterministicClock, so the same scenario
// always yields identical event ids, book digests and golden snapshots.
package harness
