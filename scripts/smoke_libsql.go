//go:build integration
// +build integration

package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/db"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/forecast"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/tools"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeLibSQL checks the embedded database end to end: migrations,
// forecast import, the temperature tool and the conversation archive.
func RunSmokeLibSQL(seedPath string) {
	fmt.Println("Smoke test: LibSQL forecast store")
	ctx := context.Background()
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	dbconn, err := db.ConnectToDB(ctx, tmp)
	must(err, "connect")
	defer dbconn.Close()

	// JSON1 backs the tool artifact payloads
	var jsonRes string
	err = dbconn.QueryRow("SELECT json_extract('{\"time_interval\":\"6h\"}', '$.time_interval')").Scan(&jsonRes)
	must(err, "JSON1 query")
	if jsonRes != "6h" {
		log.Fatalf("JSON1 returned unexpected: %v", jsonRes)
	}
	fmt.Println("OK: JSON1")

	records, err := forecast.LoadSeedFile(seedPath)
	must(err, "load seed")
	statistics := forecast.NewSQLProvider(dbconn)
	must(statistics.Upsert(ctx, records), "import seed")
	must(statistics.Upsert(ctx, records), "re-import seed")
	n, err := statistics.Count(ctx)
	must(err, "count")
	if n != len(records) {
		log.Fatalf("import is not idempotent: %d rows for %d records", n, len(records))
	}
	fmt.Printf("OK: imported %d statistics\n", n)

	registry := harness.NewRegistry()
	must(registry.Register(tools.NewAverageTemperatureTool(statistics)), "register tool")
	out, err := registry.Invoke(ctx, tools.AverageTemperatureToolName, json.RawMessage(`{"time_interval": "6h", "step": 2}`))
	must(err, "invoke tool")
	fmt.Println("OK: tool ->", out)

	if _, err := registry.Invoke(ctx, tools.AverageTemperatureToolName, json.RawMessage(`{"time_interval": "6h", "step": 99}`)); err == nil {
		log.Fatalf("out-of-range step returned data")
	} else {
		fmt.Println("OK: out-of-range step ->", err)
	}

	store := adapters.NewLibSQLConversationStore(dbconn)
	conv := harness.NewConversation()
	must(store.SaveTurn(ctx, conv.ID, ports.Turn{Role: "user", Content: "What about 12 hours from now?"}), "save turn")
	must(store.AppendToolArtifact(ctx, conv.ID, tools.AverageTemperatureToolName, []byte(out)), "save artifact")
	turns, err := store.LoadContext(ctx, conv.ID, 10)
	must(err, "load context")
	if len(turns) != 2 || turns[0].Role != "user" {
		log.Fatalf("unexpected archive contents: %+v", turns)
	}
	fmt.Println("OK: conversation archive")

	fmt.Println("Smoke checks completed.")
}
