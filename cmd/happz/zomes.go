package main

import (
	"fmt"
	"sort"

	"github.com/pbaille/happz/internal/codec"
	"github.com/pbaille/happz/internal/config"
	"github.com/pbaille/happz/internal/domain"
	"github.com/pbaille/happz/internal/fetcher"
	"github.com/pbaille/happz/internal/rpc"
	"github.com/pbaille/happz/internal/sensemaker"
	"github.com/pbaille/happz/internal/zome/memez"
	"github.com/pbaille/happz/internal/zome/paperz"
	"github.com/pbaille/happz/internal/zome/smfns"
	"github.com/spf13/cobra"
)

func memezCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memez",
		Short: "Upload, clap for, and rank memes",
	}
	cmd.AddCommand(memezUploadCmd())
	cmd.AddCommand(memezListCmd())
	cmd.AddCommand(memezClapCmd())
	cmd.AddCommand(memezClapsCmd())
	return cmd
}

func memezUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file or url]",
		Short: "Upload a meme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fetcher.Load(args[0])
			if err != nil {
				return err
			}

			z, closeConn, err := dialZome(cmd.Context(), config.AppMemez)
			if err != nil {
				return err
			}
			defer closeConn()

			var out smfns.HashPair
			meme := domain.Meme{Filename: f.Filename, BlobStr: f.BlobStr()}
			if err := z.Call(cmd.Context(), "upload_meme", meme, &out); err != nil {
				return err
			}
			fmt.Printf("Uploaded %s (%d bytes)\n", f.Filename, len(f.Data))
			fmt.Printf("Entry: %s\n", out.EntryHash)
			return nil
		},
	}
}

func memezListCmd() *cobra.Command {
	var comp string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memes ranked by a score expression",
		RunE: func(cmd *cobra.Command, args []string) error {
			z, closeConn, err := dialZome(cmd.Context(), config.AppMemez)
			if err != nil {
				return err
			}
			defer closeConn()

			var feed []memez.FeedItem
			in := memez.FeedInput{ScoreComp: comp, Agent: z.Info().CellID.Agent}
			if err := z.Call(cmd.Context(), "get_all_memez", in, &feed); err != nil {
				return err
			}
			if len(feed) == 0 {
				fmt.Println("No memez yet.")
				return nil
			}
			for _, item := range rankFeed(feed) {
				fmt.Printf("%6d  %s  %s\n", item.Score, item.EntryHash, item.Meme.Filename)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&comp, "comp", "+", "score expression applied to (meme data, agent data)")
	return cmd
}

// rankFeed orders feed by descending score. Ties keep their feed order.
func rankFeed(feed []memez.FeedItem) []memez.FeedItem {
	sort.SliceStable(feed, func(i, j int) bool { return feed[i].Score > feed[j].Score })
	return feed
}

func memezClapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clap [entry hash]",
		Short: "Clap for a meme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eh, err := domain.ParseEntryHash(args[0])
			if err != nil {
				return err
			}
			z, closeConn, err := dialZome(cmd.Context(), config.AppMemez)
			if err != nil {
				return err
			}
			defer closeConn()

			return z.Call(cmd.Context(), "clap_for_meme", eh, nil)
		},
	}
}

func memezClapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claps [entry hash]",
		Short: "Show a meme's clap count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eh, err := domain.ParseEntryHash(args[0])
			if err != nil {
				return err
			}
			z, closeConn, err := dialZome(cmd.Context(), config.AppMemez)
			if err != nil {
				return err
			}
			defer closeConn()

			var n *int64
			if err := z.Call(cmd.Context(), "meme_clap_count", eh, &n); err != nil {
				return err
			}
			if n == nil {
				fmt.Println("no score")
				return nil
			}
			fmt.Println(*n)
			return nil
		},
	}
}

func paperzCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paperz",
		Short: "Upload and annotate papers",
	}
	cmd.AddCommand(paperzUploadCmd())
	cmd.AddCommand(paperzListCmd())
	cmd.AddCommand(paperzAnnotateCmd())
	cmd.AddCommand(paperzAnnotationsCmd())
	return cmd
}

func paperzUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file or url]",
		Short: "Upload a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := fetcher.Load(args[0])
			if err != nil {
				return err
			}

			z, closeConn, err := dialZome(cmd.Context(), config.AppPaperz)
			if err != nil {
				return err
			}
			defer closeConn()

			var out smfns.HashPair
			in := paperz.UploadInput{
				Paper: domain.Paper{Filename: f.Filename, BlobStr: f.BlobStr()},
				Agent: z.Info().CellID.Agent,
			}
			if err := z.Call(cmd.Context(), "upload_paper", in, &out); err != nil {
				return err
			}
			fmt.Printf("Uploaded %s (%d bytes)\n", f.Filename, len(f.Data))
			fmt.Printf("Entry: %s\n", out.EntryHash)
			return nil
		},
	}
}

func paperzListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			z, closeConn, err := dialZome(cmd.Context(), config.AppPaperz)
			if err != nil {
				return err
			}
			defer closeConn()

			var papers []paperz.PaperItem
			if err := z.Call(cmd.Context(), "get_all_paperz", nil, &papers); err != nil {
				return err
			}
			if len(papers) == 0 {
				fmt.Println("No paperz yet.")
				return nil
			}
			for _, p := range papers {
				fmt.Printf("%s  %s\n", p.EntryHash, p.Paper.Filename)
			}
			return nil
		},
	}
}

func paperzAnnotateCmd() *cobra.Command {
	var ann domain.Annotation

	cmd := &cobra.Command{
		Use:   "annotate [paper hash]",
		Short: "Annotate a paragraph of a paper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paper, err := domain.ParseEntryHash(args[0])
			if err != nil {
				return err
			}
			ann.PaperRef = paper

			z, closeConn, err := dialZome(cmd.Context(), config.AppPaperz)
			if err != nil {
				return err
			}
			defer closeConn()

			var out smfns.HashPair
			if err := z.Call(cmd.Context(), "create_annotation", ann, &out); err != nil {
				return err
			}
			fmt.Printf("Annotation: %s\n", out.EntryHash)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&ann.PageNum, "page", 0, "page number")
	cmd.Flags().Uint64Var(&ann.ParagraphNum, "paragraph", 0, "paragraph number")
	cmd.Flags().StringVar(&ann.WhatItSays, "says", "", "what the paragraph says")
	cmd.Flags().StringVar(&ann.WhatItShouldSay, "should-say", "", "what it should say")
	return cmd
}

func paperzAnnotationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotations [paper hash]",
		Short: "List a paper's annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paper, err := domain.ParseEntryHash(args[0])
			if err != nil {
				return err
			}
			z, closeConn, err := dialZome(cmd.Context(), config.AppPaperz)
			if err != nil {
				return err
			}
			defer closeConn()

			var anns []paperz.AnnotationItem
			if err := z.Call(cmd.Context(), "get_annotations_for_paper", paper, &anns); err != nil {
				return err
			}
			for _, a := range anns {
				fmt.Printf("%s  p%d ¶%d\n", a.EntryHash, a.Annotation.PageNum, a.Annotation.ParagraphNum)
				fmt.Printf("  says:       %s\n", a.Annotation.WhatItSays)
				fmt.Printf("  should say: %s\n", a.Annotation.WhatItShouldSay)
			}
			return nil
		},
	}
}

func smCmd() *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "sm",
		Short: "Inspect and configure sensemaker state through an app",
	}
	cmd.PersistentFlags().StringVar(&appID, "app", config.AppMemez, "app to call through")

	getCmd := func(use, fn, tag string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [path]",
			Short: "Show the latest " + tag + " of a path",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				z, closeConn, err := dialZome(cmd.Context(), appID)
				if err != nil {
					return err
				}
				defer closeConn()

				var res *rpc.EntryResult
				if err := z.Call(cmd.Context(), fn, args[0], &res); err != nil {
					return err
				}
				if res == nil {
					fmt.Println("not set")
					return nil
				}
				printEntry(res.EntryHash, res.Entry)
				return nil
			},
		}
	}
	setCmd := func(use, fn, tag string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [path] [expr]",
			Short: "Set the " + tag + " expression of a path",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				z, closeConn, err := dialZome(cmd.Context(), appID)
				if err != nil {
					return err
				}
				defer closeConn()

				return z.Call(cmd.Context(), fn, smfns.PathExpr{Path: args[0], Expr: args[1]}, nil)
			},
		}
	}

	cmd.AddCommand(getCmd("get-init", "get_sm_init", domain.SMInitTag))
	cmd.AddCommand(getCmd("get-comp", "get_sm_comp", domain.SMCompTag))
	cmd.AddCommand(setCmd("set-init", "set_sm_init", domain.SMInitTag))
	cmd.AddCommand(setCmd("set-comp", "set_sm_comp", domain.SMCompTag))

	cmd.AddCommand(&cobra.Command{
		Use:   "data [entry hash]",
		Short: "Show the SM_DATA of an app entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eh, err := domain.ParseEntryHash(args[0])
			if err != nil {
				return err
			}
			z, closeConn, err := dialZome(cmd.Context(), appID)
			if err != nil {
				return err
			}
			defer closeConn()

			// memez answers (entry hash, action hash, entry), paperz
			// answers (entry hash, entry).
			var res []codec.RawMessage
			if err := z.Call(cmd.Context(), "get_sm_data", eh, &res); err != nil {
				return err
			}
			if len(res) < 2 {
				fmt.Println("not set")
				return nil
			}
			var (
				dataHash domain.EntryHash
				entry    domain.SensemakerEntry
			)
			if err := codec.Unmarshal(res[0], &dataHash); err != nil {
				return fmt.Errorf("decode entry hash: %w", err)
			}
			if err := codec.Unmarshal(res[len(res)-1], &entry); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			printEntry(dataHash, entry)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "step [path] [target] [act]",
		Short: "Apply an act to the SM_DATA of path/target",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			z, closeConn, err := dialZome(cmd.Context(), appID)
			if err != nil {
				return err
			}
			defer closeConn()

			return z.Call(cmd.Context(), "step_sm_path_remote", rpc.StepPath{Path: args[0], Target: args[1], Act: args[2]}, nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history [path] [tag]",
		Short: "Show every version of the state under a path and tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			z, closeConn, err := dialZome(cmd.Context(), cfg.SensemakerApp)
			if err != nil {
				return err
			}
			defer closeConn()

			var records []sensemaker.Record
			if err := z.Call(cmd.Context(), rpc.FnGetHistoryByPath, rpc.PathTag{Path: args[0], Tag: args[1]}, &records); err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("not set")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%4d  %s  %-12s %s\n", r.Seq, r.Time().Format("2006-01-02 15:04:05"), r.Entry.Output, r.Entry.Operator)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init-agent",
		Short: "Initialize the SM_DATA of this agent (paperz)",
		RunE: func(cmd *cobra.Command, args []string) error {
			z, closeConn, err := dialZome(cmd.Context(), config.AppPaperz)
			if err != nil {
				return err
			}
			defer closeConn()

			agent := z.Info().CellID.Agent
			in := rpc.PathTarget{Path: domain.AgentPath, Target: agent.String()}
			if err := z.Call(cmd.Context(), "init_agent_sm_data", in, nil); err != nil {
				return err
			}
			fmt.Printf("Initialized %s/%s\n", domain.AgentPath, agent)
			return nil
		},
	})

	return cmd
}

func printEntry(eh domain.EntryHash, e domain.SensemakerEntry) {
	fmt.Printf("Entry:    %s\n", eh)
	fmt.Printf("Operator: %s\n", e.Operator)
	for _, op := range e.Operands {
		fmt.Printf("Operand:  %s\n", op)
	}
	fmt.Printf("Value:    %s\n", e.Output)
}
