package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errNotConfirmed = errors.New("recount not confirmed; pass -yes to skip the prompt")
)

func (cli *commandLine) recount(ctx context.Context, articleID string) error {
	a, err := cli.contentSvc.RecountArticle(ctx, articleID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "article %s: views=%d likes=%d dislikes=%d comments=%d\n",
		a.ID, a.ViewsCount, a.LikesCount, a.DislikesCount, a.CommentsCount)
	return nil
}

// isTerminal reports whether r is an interactive terminal. Readers without a file descriptor never are.
func isTerminal(r io.Reader) bool {
	f, ok := r.(interface{ Fd() uintptr })
	return ok && isTerminalFunc(int(f.Fd()))
}

// recountAll recounts every article. Without -yes it asks for confirmation on cli.in, which must be a terminal.
func (cli *commandLine) recountAll(ctx context.Context, yes bool) error {
	articles, err := cli.contentSvc.QueryArticles(ctx, nil)
	if err != nil {
		return err
	}

	if !yes {
		if !isTerminal(cli.in) {
			return errNotConfirmed
		}
		fmt.Fprintf(cli.out, "Recount %d articles? [y/N] ", len(articles))
		answer, _ := bufio.NewReader(cli.in).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			return errNotConfirmed
		}
	}

	for _, a := range articles {
		if err = cli.recount(ctx, a.ID); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.out, "recounted %d articles\n", len(articles))
	return nil
}
