package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rexcards.org/internal/migrate"
)

func main() {
	var (
		dsn        = flag.String("dsn", os.Getenv("REXCARDS_PG_DSN"), "postgres connection string")
		migrations = flag.String("migrations", "migrations", "directory with *.up.sql / *.down.sql files")
		seeds      = flag.String("seeds", "seeds", "directory with seed *.sql files")
		timeout    = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] up|down|seed|status\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "migrate: -dsn or REXCARDS_PG_DSN is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fatal(err)
	}

	mgr := migrate.NewManager(db, *migrations, *seeds)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		n, err := mgr.Up(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("applied %d migration(s)\n", n)
	case "down":
		name, err := mgr.Down(ctx)
		if err != nil {
			fatal(err)
		}
		if name == "" {
			fmt.Println("nothing to revert")
		} else {
			fmt.Printf("reverted %s\n", name)
		}
	case "seed":
		n, err := mgr.Seed(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("applied %d seed file(s)\n", n)
	case "status":
		lines, err := mgr.Status(ctx)
		if err != nil {
			fatal(err)
		}
		if len(lines) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
