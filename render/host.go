package render

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/caffeineduck/wikilua/content"
	"github.com/caffeineduck/wikilua/executor"
	"github.com/caffeineduck/wikilua/hostfunc"
)

var _ hostfunc.Host = (*Renderer)(nil)

// Dispatch serves a host call from a running module.
func (r *Renderer) Dispatch(ctx context.Context, s hostfunc.Session, call hostfunc.Call) error {
	switch c := call.(type) {
	case *hostfunc.GetExpandedArgument:
		f, err := frame(s, c.Frame, c.Kind())
		if err != nil {
			return err
		}
		c.Result, c.Found = f.Args[c.Key]
		return nil

	case *hostfunc.GetAllExpandedArguments:
		f, err := frame(s, c.Frame, c.Kind())
		if err != nil {
			return err
		}
		c.Result = maps.Clone(f.Args)
		return nil

	case *hostfunc.ExpandTemplate:
		out, err := r.expandTemplate(ctx, s, c)
		if err != nil {
			return err
		}
		c.Result = out
		return nil

	case *hostfunc.CallParserFunction:
		f, err := frame(s, c.Frame, c.Kind())
		if err != nil {
			return err
		}
		out, err := r.registry.Call(ctx, f, c.Name, c.Args)
		if err != nil {
			return &hostfunc.CallError{Kind: c.Kind(), Err: err}
		}
		c.Result, err = r.strips.strip(out)
		return err

	case *hostfunc.Preprocess:
		f, err := frame(s, c.Frame, c.Kind())
		if err != nil {
			return err
		}
		out, err := r.preprocess(ctx, f, c.Text)
		if err != nil {
			return &hostfunc.CallError{Kind: c.Kind(), Err: err}
		}
		c.Result = out
		return nil

	case *hostfunc.Unstrip:
		out, err := r.strips.unstrip(c.Text, c.Mode)
		if err != nil {
			return &hostfunc.CallError{Kind: c.Kind(), Err: err}
		}
		c.Result = out
		return nil
	}
	return fmt.Errorf("unsupported host call %T", call)
}

func frame(s hostfunc.Session, id hostfunc.FrameID, kind hostfunc.Kind) (*hostfunc.Frame, error) {
	f, ok := s.Frame(id)
	if !ok {
		return nil, &hostfunc.CallError{Kind: kind, Err: fmt.Errorf("%w: %s", hostfunc.ErrNoSuchFrame, id)}
	}
	return f, nil
}

// templateTitle puts titles without a namespace into Template:. A leading
// colon selects the main namespace.
func templateTitle(title string) string {
	title = strings.TrimSpace(title)
	if rest, ok := strings.CutPrefix(title, ":"); ok {
		return content.NormalizeTitle(rest)
	}
	if strings.Contains(title, ":") {
		return content.NormalizeTitle(title)
	}
	return content.NormalizeTitle("Template:" + title)
}

func (r *Renderer) expandTemplate(ctx context.Context, s hostfunc.Session, c *hostfunc.ExpandTemplate) (string, error) {
	parent, err := frame(s, c.Frame, c.Kind())
	if err != nil {
		return "", err
	}
	title := templateTitle(c.Title)
	page, err := r.store.Page(ctx, title)
	if err != nil {
		return "", notFound(c.Kind(), title, err)
	}
	f := parent.Child(page.Title, c.Args)

	body, err := substituteParams(page.Text, f.Args)
	if err != nil {
		return "", &hostfunc.CallError{Kind: c.Kind(), Err: err}
	}
	inv, ok, err := parseInvokeBody(body)
	if err != nil {
		return "", &hostfunc.CallError{Kind: c.Kind(), Err: err}
	}
	if !ok {
		out, err := r.preprocessBody(ctx, f, body)
		if err != nil {
			return "", &hostfunc.CallError{Kind: c.Kind(), Err: err}
		}
		return out, nil
	}

	mod, err := r.store.Page(ctx, inv.module)
	if err != nil {
		return "", notFound(c.Kind(), inv.module, err)
	}
	out, err := s.Invoke(ctx, hostfunc.Invocation{
		Module:   mod.Title,
		ID:       mod.ID,
		Function: inv.function,
		Frame:    f.Child(mod.Title, inv.args),
	})
	switch {
	case err == nil:
		return out, nil
	case executor.IsResourceExceeded(err), hostfunc.IsFatal(err):
		return "", err
	default:
		return "", &hostfunc.CallError{Kind: c.Kind(), Err: err}
	}
}

// preprocess expands text in the context of frame f.
func (r *Renderer) preprocess(ctx context.Context, f *hostfunc.Frame, text string) (string, error) {
	text, err := substituteParams(text, f.Args)
	if err != nil {
		return "", err
	}
	return r.preprocessBody(ctx, f, text)
}

func (r *Renderer) preprocessBody(ctx context.Context, f *hostfunc.Frame, text string) (string, error) {
	text, err := r.strips.strip(text)
	if err != nil {
		return "", err
	}
	return r.callParserFunctions(ctx, f, text)
}
