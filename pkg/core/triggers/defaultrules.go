package triggers

// DefaultRules ships empty. Per spec.md §9's resolved Open Question: "the
// shipped Engagement Triggers table is empty by comment ('all disabled');
// leave the rule table as a data file and ship empty by default." The
// mechanism above (Engine, priority ordering, cooldowns, one-fire-per-cycle)
// is the deliverable; an embedding site owner populates this table via the
// Operator Console.
var DefaultRules = []Rule{}
