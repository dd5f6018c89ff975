// Command livesearch is a terminal live search over the catalog API.
//
// It signs in, then reads lines from stdin; every line is treated as the
// current contents of the search box. Results for a query are printed only
// if no newer line was typed within the debounce window. When the session
// has lapsed the search is bounced to the login page; with -user set the
// tool signs in again and resumes where it was.
//
//	livesearch -site http://localhost:8080 -user alice
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-portfolio-backend/internal/sysutil"
	"github.com/tbourn/go-portfolio-backend/internal/webclient"
)

func main() {
	site := flag.String("site", sysutil.FirstNonEmpty(os.Getenv("LIVESEARCH_SITE"), "http://localhost:8080"), "site base URL")
	user := flag.String("user", os.Getenv("LIVESEARCH_USER"), "username (password from LIVESEARCH_PASSWORD)")
	debounce := flag.Duration("debounce", webclient.DefaultDebounce, "quiet period before a search is sent")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	sysutil.ConfigureLogger(level, true)

	referral := &webclient.Referral{}
	client, err := webclient.New(*site, webclient.WithReferral(referral))
	if err != nil {
		log.Fatal().Err(err).Msg("client")
	}
	ctx := context.Background()
	signIn := func() bool {
		if *user == "" {
			return false
		}
		u, next, err := client.SignIn(ctx, *user, os.Getenv("LIVESEARCH_PASSWORD"))
		if err != nil {
			log.Error().Err(err).Str("user", *user).Msg("login")
			return false
		}
		fmt.Printf("signed in as %s, continuing at %s\n", u.Username, next)
		return true
	}
	if *user != "" && !signIn() {
		os.Exit(1)
	}

	// bounced is signalled from OnError; hooks must not call back into ls.
	bounced := make(chan struct{}, 1)
	ls := webclient.NewLiveSearch(client, webclient.LiveSearchOptions{
		Debounce: *debounce,
		OnLoading: func(loading bool) {
			if loading {
				fmt.Println("searching...")
			}
		},
		OnResults: printResults,
		OnError: func(err error) {
			if re, ok := webclient.IsRedirect(err); ok {
				fmt.Printf("%s (login at %s)\n", re.Message, re.Location)
				select {
				case bounced <- struct{}{}:
				default:
				}
				return
			}
			fmt.Println("error:", err)
		},
		Referral:    referral,
		CurrentPath: func() string { return "/" },
	})
	defer ls.Close()

	in := bufio.NewScanner(os.Stdin)
	last := ""
	for in.Scan() {
		select {
		case <-bounced:
			if signIn() && in.Text() == "" {
				// Re-run the query that was bounced.
				ls.Type(last)
				continue
			}
		default:
		}
		last = in.Text()
		ls.Type(last)
	}
	// Let a pending search finish before exiting on EOF.
	time.Sleep(*debounce + 2*time.Second)
	log.Debug().Uint64("stale", ls.Stale()).Msg("done")
}

func printResults(results []webclient.SearchResult) {
	if results == nil {
		return
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "  %-24s %s\n", r.Name, r.Series.Name)
	}
	fmt.Print(b.String())
}
