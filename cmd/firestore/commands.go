package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/firestore-auth/documents"
	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/sessions"
	"github.com/jrsteele09/firestore-auth/users"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/api/iterator"
)

type sessionInfo struct {
	ProjectID    string    `json:"projectId"`
	UserID       string    `json:"userId,omitempty"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

func (a *app) sessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Create a session and print its tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if a.flags.userID == "" && a.flags.refreshToken == "" && a.flags.accessToken == "" {
				s, err := sessions.NewServiceAccountSession(a.creds)
				if err != nil {
					return err
				}
				return a.printJSON(sessionInfo{ProjectID: s.ProjectID(), Token: s.BearerUnchecked(), Expiry: s.Expiry()})
			}

			s, err := a.userSession(ctx)
			if err != nil {
				return err
			}
			return a.printJSON(sessionInfo{
				ProjectID:    s.ProjectID(),
				UserID:       s.UserID,
				Token:        s.BearerUnchecked(),
				RefreshToken: s.RefreshToken(),
				Expiry:       s.Expiry(),
			})
		},
	}
}

func (a *app) readCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "read <collection> <id>",
		Short: "Print one document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			auth, err := a.session(ctx)
			if err != nil {
				return err
			}

			if raw {
				contents, err := documents.Contents(ctx, a.documents(), auth, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, contents)
				return err
			}

			doc, err := documents.Read[map[string]interface{}](ctx, a.documents(), auth, args[0], args[1])
			if err != nil {
				return err
			}
			return a.printJSON(doc)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the typed REST representation")
	return cmd
}

func (a *app) writeCmd() *cobra.Command {
	var (
		data       string
		merge      bool
		generateID bool
	)

	cmd := &cobra.Command{
		Use:   "write <collection> [id]",
		Short: "Create or replace a document from a JSON object",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var doc map[string]interface{}
			dec := json.NewDecoder(strings.NewReader(data))
			dec.UseNumber()
			if err := dec.Decode(&doc); err != nil {
				return fmt.Errorf("--data must be a JSON object: %w", err)
			}

			id := ""
			if len(args) == 2 {
				id = args[1]
			} else if generateID {
				id = uuid.New().String()
			}

			auth, err := a.session(ctx)
			if err != nil {
				return err
			}

			res, err := documents.Write(ctx, a.documents(), auth, args[0], id, doc, documents.WriteOptions{Merge: merge})
			if err != nil {
				return err
			}
			log.Info().Str("collection", args[0]).Str("id", res.DocumentID).Msg("Document written")
			return a.printJSON(res)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "{}", "document as a JSON object")
	cmd.Flags().BoolVar(&merge, "merge", false, "only update the given fields of an existing document")
	cmd.Flags().BoolVar(&generateID, "uuid", false, "use a random UUID as the document id instead of a server generated one")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		pageSize int
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list <collection>",
		Short: "Print every document of a collection, one JSON object per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			auth, err := a.session(ctx)
			if err != nil {
				return err
			}

			list := documents.NewList[map[string]interface{}](a.documents(), auth, args[0], documents.WithPageSize(pageSize))
			enc := json.NewEncoder(a.out)
			for n := 0; limit <= 0 || n < limit; n++ {
				v, doc, err := list.Next(ctx)
				if errors.Is(err, iterator.Done) {
					return nil
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(map[string]interface{}{"id": documents.AbsToRel(doc.Name), "data": v}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "documents per request")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many documents")
	return cmd
}

var operators = map[string]dto.FieldOperator{
	"<":                  dto.OperatorLessThan,
	"<=":                 dto.OperatorLessThanOrEqual,
	">":                  dto.OperatorGreaterThan,
	">=":                 dto.OperatorGreaterThanOrEqual,
	"==":                 dto.OperatorEqual,
	"!=":                 dto.OperatorNotEqual,
	"array-contains":     dto.OperatorArrayContains,
	"in":                 dto.OperatorIn,
	"array-contains-any": dto.OperatorArrayContainsAny,
	"not-in":             dto.OperatorNotIn,
}

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <collection> <field> <op> <value>",
		Short: "Run a single field filter, for example: query users age '>=' 18",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			op, ok := operators[args[2]]
			if !ok {
				return fmt.Errorf("unknown operator %q", args[2])
			}

			// values that parse as JSON keep their type, anything else is a string
			var value interface{} = args[3]
			dec := json.NewDecoder(strings.NewReader(args[3]))
			dec.UseNumber()
			var parsed interface{}
			if err := dec.Decode(&parsed); err == nil {
				value = parsed
			}

			auth, err := a.session(ctx)
			if err != nil {
				return err
			}

			docs, err := documents.Query(ctx, a.documents(), auth, args[0], value, op, args[1])
			if err != nil {
				return err
			}

			results := make([]map[string]interface{}, 0, len(docs))
			for _, doc := range docs {
				v, err := documents.Decode[map[string]interface{}](doc)
				if err != nil {
					return err
				}
				results = append(results, map[string]interface{}{"id": documents.AbsToRel(doc.Name), "data": v})
			}
			return a.printJSON(results)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	var mustExist bool

	cmd := &cobra.Command{
		Use:   "delete <document-path>",
		Short: "Delete a document, for example: delete users/42",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			auth, err := a.session(ctx)
			if err != nil {
				return err
			}
			if err := documents.Delete(ctx, a.documents(), auth, args[0], mustExist); err != nil {
				return err
			}
			log.Info().Str("path", args[0]).Msg("Document deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&mustExist, "must-exist", false, "fail when the document does not exist")
	return cmd
}

func (a *app) userInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "userinfo",
		Short: "Print the Firebase account of the user session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.userSession(ctx)
			if err != nil {
				return err
			}

			info, err := users.UserInfo(ctx, a.users(), s)
			if err != nil {
				return err
			}
			return a.printJSON(info)
		},
	}
}

func (a *app) userRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "userremove",
		Short: "Delete the Firebase account of the user session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.userSession(ctx)
			if err != nil {
				return err
			}

			if err := users.UserRemove(ctx, a.users(), s); err != nil {
				return err
			}
			log.Info().Str("user_id", s.UserID).Msg("User removed")
			return nil
		},
	}
}

func (a *app) cookieCmd() *cobra.Command {
	var validFor time.Duration

	cmd := &cobra.Command{
		Use:   "cookie",
		Short: "Exchange the user session's ID token for a session cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.userSession(ctx)
			if err != nil {
				return err
			}

			idToken, err := s.Bearer(ctx)
			if err != nil {
				return err
			}

			cookie, err := sessions.CreateSessionCookie(ctx, a.creds, idToken, validFor)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.out, cookie)
			return err
		},
	}
	cmd.Flags().DurationVar(&validFor, "valid-for", a.cfg.GetSessionCookieValidity(), "cookie lifetime, between 5m and 336h")
	return cmd
}
