/*
Package quarry is an agent execution graph for answering natural-language
questions about business data. It drives a fixed set of fourteen nodes
(comprehension, classification, orchestration, retrieval, planning, sandboxed
execution, observation, bounded self-correction and reflection, response,
summarization) through a declarative routing table until the run terminates
with a user-visible answer.

# Concept

Quarry treats an answer as a run through a state machine. Nodes do the work
and return symbolic outcomes; a router maps (node, outcome) pairs to
successors; an executor loops until the terminal marker, checkpointing the
full state after every transition. Nodes never call each other - changing
the flow means changing the table, not the nodes. The same separation keeps
collaborator faults contained: a model timeout or a warehouse outage becomes
a routable outcome, never a crashed run.

# Key Properties

  - Deterministic topology: the routing table is validated at construction;
    an incomplete table fails fast with ErrTopology instead of surfacing
    mid-run.
  - Bounded loops: self-correction and self-reflection carry per-run attempt
    ceilings, and a global hop ceiling backstops everything.
  - Graceful endings: every run ends with a response; exhausted retries and
    missing data route to an explanation, not an error.
  - Replayable runs: checkpoints capture full state per transition, so any
    run can be inspected or replayed after the fact.

# Usage

Wire a model client, optionally a warehouse, and ask:

	package main

	import (
		"context"
		"fmt"
		"log"
		"os"

		"github.com/quarrydata/quarry"
		"github.com/quarrydata/quarry/pkg/adapters/openai"
		"github.com/quarrydata/quarry/pkg/adapters/sqlite"
	)

	func main() {
		model := openai.New(os.Getenv("OPENAI_API_KEY"), openai.WithModel("gpt-4o"))
		warehouse, err := sqlite.OpenWarehouse("./sales.db")
		if err != nil {
			log.Fatal(err)
		}
		defer warehouse.Close()

		eng, err := quarry.New(
			quarry.WithModel(model),
			quarry.WithWarehouse(warehouse),
		)
		if err != nil {
			log.Fatal(err)
		}

		state, err := eng.Ask(context.Background(), "demo-session",
			"What was our average order value last quarter?")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(state.FinalResponse)
	}

Sessions are durable: consecutive Ask calls with the same session ID share
summarized memory, so follow-up questions can lean on earlier turns.
*/
package quarry
