package vfs

import (
	"context"
	"time"
)

// MaxLinkHops bounds symbolic link resolution. Links may form cycles; the
// walker does not detect them structurally, it just refuses to chase more
// than this many hops.
const MaxLinkHops = 40

// traverseFlags modify the walker's behavior.
type traverseFlags uint32

const (
	// flagResolveLinks makes the walker chase a terminal link node by
	// reading its body and restarting from the link's parent.
	flagResolveLinks traverseFlags = 1 << iota

	// flagIgnoreLast stops the walk one component short, leaving the
	// final component in the remainder for the caller to create.
	flagIgnoreLast
)

// materializeFunc is invoked on a child miss to produce the missing node.
//
// The walker holds parent's branchMu for the duration of the call, so the
// callback may attach a new child without further locking. mountRel is the
// suffix of the path relative to the enclosing mount ("" when no mount
// encloses the parent). last tells the callback whether the component is
// the terminal one.
//
// Returning (nil, nil) reports a clean miss; returning an error aborts the
// traversal with that error.
type materializeFunc func(ctx context.Context, parent *Node, comp string, mountRel string, last bool) (*Node, error)

// walkResult is what a completed traversal hands back to the graph ops.
type walkResult struct {
	// node is the terminal node carrying one caller-owed reference, or
	// nil when the walk stopped at a missing component.
	node *Node

	// remainder is the unconsumed suffix of the path, beginning at the
	// component that would be processed next. Empty on full consumption.
	remainder string

	// mount is the nearest enclosing mountpoint of the terminal node
	// (nil for in-memory-only subtrees).
	mount *Node

	// mountRel is the walked path relative to mount, in driver form.
	// With flagIgnoreLast it still includes the ignored component, which
	// is exactly what rename needs for the driver-side destination.
	mountRel string
}

// traverse walks path starting at start.
//
// The walker consumes components from the lexer, descending under per-node
// branch locks: the parent's lock is held only for the child scan and the
// optional materialization callback, then released before the child is
// entered. References are handed across the spine - the next node is
// pinned before the current one is released - so no node on the active
// path can be freed mid-walk.
//
// On success the terminal node is returned with one extra reference owed
// to the caller. On a clean miss the result carries a nil node and the
// remainder names the missing suffix; every reference taken during the
// walk has been dropped. Broken links, link-hop exhaustion and driver
// failures return errors.
func (v *VFS) traverse(ctx context.Context, path string, start *Node, flags traverseFlags, callback materializeFunc) (*walkResult, error) {
	if start == nil {
		return nil, newError(ErrInvalidArgument, "nil traversal start", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	began := time.Now()
	res, err := v.walk(ctx, path, start, flags, callback)

	switch {
	case err != nil:
		v.metrics.ObserveTraversal("error", time.Since(began))
	case res.node == nil:
		v.metrics.ObserveTraversal("miss", time.Since(began))
	default:
		v.metrics.ObserveTraversal("ok", time.Since(began))
	}

	return res, err
}

func (v *VFS) walk(ctx context.Context, path string, start *Node, flags traverseFlags, callback materializeFunc) (*walkResult, error) {
	cur := start
	cur.incRef()

	// origin is the first link node encountered while resolving; it is
	// what the caller ultimately sees as the terminal.
	var origin *Node
	linkHops := 0

	// fail releases every reference the walk still holds: the walk's own
	// reference on cur plus the origin link's, which are distinct even
	// when a link cycle walks back onto the origin node.
	fail := func(err error) (*walkResult, error) {
		cur.decRef()
		if origin != nil {
			origin.decRef()
		}
		return nil, err
	}

restart:
	// The mount-relative suffix handed to drivers. Captured once: either
	// seeded from the start node's position below its mount, or recorded
	// when the walk first steps off a mountpoint.
	haveMount := cur.Mount() != nil
	mountPath := ""
	if haveMount {
		mountPath = joinRel(mountRelPrefix(cur), trimSlashes(path))
	}

	cursor := 0
	for {
		compStart, compEnd, last, ok := nextComponent(path, cursor)
		if !ok {
			break
		}
		comp := path[compStart:compEnd]

		if !haveMount && cur.isMountpoint() {
			// The suffix from here on is interpreted relative to
			// this mount.
			haveMount = true
			mountPath = trimSlashes(path[compStart:])
		}

		if flags&flagIgnoreLast != 0 && last {
			cursor = compStart
			break
		}

		var next *Node
		pinned := false

		switch comp {
		case "..":
			cur.branchMu.Lock()
			next = cur.parent
			cur.branchMu.Unlock()
			if next == nil {
				// The root's parent is the root.
				next = cur
			}
		case ".":
			next = cur
		default:
			if !cur.kindLocked().IsDirLike() {
				return fail(newError(ErrNotDirectory, "cannot descend through "+cur.kindLocked().String(), path))
			}

			rel := ""
			if haveMount {
				rel = mountPath
			}

			cur.branchMu.Lock()
			next = findChild(cur, comp)
			if next == nil && callback != nil {
				created, err := callback(ctx, cur, comp, rel, last)
				if err != nil {
					cur.branchMu.Unlock()
					return fail(err)
				}
				if created != nil {
					v.metrics.NodeCreated()
				}
				next = created
			}
			if next != nil {
				// Pin the child before the parent's lock is
				// released, so the hand-off never exposes an
				// unpinned node.
				next.incRef()
				pinned = true
			}
			cur.branchMu.Unlock()
		}

		if next == nil {
			remainder := path[compStart:]
			if linkHops > 0 {
				return fail(newError(ErrBrokenLink, "link resolves to a missing path", remainder))
			}
			cur.decRef()
			return &walkResult{remainder: remainder}, nil
		}

		if next != cur {
			if !pinned {
				next.incRef()
			}
			cur.decRef()
			cur = next
		} else if pinned {
			cur.decRef()
		}

		cursor = compEnd
	}

	// Chase terminal links when asked to.
	for flags&flagResolveLinks != 0 && cur.kindLocked() == KindLink {
		if target := cur.LinkTarget(); target != nil {
			if origin == nil {
				// The caller sees the link itself; its cached
				// target serves I/O.
				break
			}
			if linkHops >= MaxLinkHops {
				return fail(newError(ErrTooManyLinks, "symlink resolution exceeded hop bound", path))
			}
			linkHops++
			target.incRef()
			// The walk's reference on cur is distinct from the
			// origin's even when they are the same node.
			cur.decRef()
			cur = target
			continue
		}

		if linkHops >= MaxLinkHops {
			return fail(newError(ErrTooManyLinks, "symlink resolution exceeded hop bound", path))
		}
		linkHops++

		body, err := v.readLinkBody(ctx, cur)
		if err != nil || len(body) == 0 {
			return fail(&Error{Code: ErrBrokenLink, Message: "link body unreadable", Path: path, Err: err})
		}

		// Restart from the link's parent, or from the root for
		// absolute bodies.
		next := cur.Parent()
		if body[0] == '/' || next == nil {
			next = v.root
		}

		if origin == nil {
			// The walk's reference on cur becomes the origin's.
			origin = cur
		} else {
			cur.decRef()
		}

		next.incRef()
		path = body
		cur = next
		goto restart
	}

	if origin != nil {
		if origin == cur {
			// A cycle resolved back onto the origin itself; collapse
			// the walk's reference into the origin's.
			cur.decRef()
		} else {
			// Install the resolved target on the origin link. The
			// walker's reference on cur transfers to the link edge;
			// the caller sees the origin as the terminal.
			origin.propMu.Lock()
			duplicate := origin.linkTarget != nil
			if !duplicate {
				origin.linkTarget = cur
			}
			origin.propMu.Unlock()
			if duplicate {
				// A concurrent resolution won the install.
				cur.decRef()
			}
		}
		v.metrics.ObserveLinkHops(linkHops)
		cur = origin
	}

	remainder := ""
	if _, _, _, ok := nextComponent(path, cursor); ok {
		remainder = trimSlashes(path[cursor:])
	}

	result := &walkResult{
		node:      cur,
		remainder: remainder,
		mount:     cur.Mount(),
	}
	if result.mount != nil {
		if haveMount {
			result.mountRel = mountPath
		} else {
			result.mountRel = mountRelPrefix(cur)
		}
	}

	return result, nil
}

// readLinkBody reads the textual body of a link node through its own
// resource (never the target's).
func (v *VFS) readLinkBody(ctx context.Context, link *Node) (string, error) {
	link.propMu.Lock()
	res := link.resource
	size := link.stat.Size
	link.propMu.Unlock()

	if res == nil || res.Driver == nil || size <= 0 {
		return "", newError(ErrBrokenLink, "link has no readable body", link.Name())
	}

	buf := make([]byte, size)
	n, err := res.Driver.ReadAt(ctx, res, buf, 0)
	if n <= 0 && err != nil {
		return "", driverError("link body read failed", link.Name(), err)
	}

	return string(buf[:n]), nil
}
