package models

import "slices"

// Reactions holds the user-id sets attached to objects and comments. A user
// id is in at most one of Likes and Dislikes.
type Reactions struct {
	Likes    []string
	Dislikes []string
	Reports  []string
}

// Liked reports whether uid is in the like set.
func (r Reactions) Liked(uid string) bool { return slices.Contains(r.Likes, uid) }

// Disliked reports whether uid is in the dislike set.
func (r Reactions) Disliked(uid string) bool { return slices.Contains(r.Dislikes, uid) }

// Reported reports whether uid already reported.
func (r Reactions) Reported(uid string) bool { return slices.Contains(r.Reports, uid) }

// ToggleLike returns the sets after uid toggles a like. Liking removes a
// previous dislike in the same step.
func (r Reactions) ToggleLike(uid string) Reactions {
	out := r.clone()
	if out.Liked(uid) {
		out.Likes = without(out.Likes, uid)
		return out
	}
	out.Likes = append(out.Likes, uid)
	out.Dislikes = without(out.Dislikes, uid)
	return out
}

// ToggleDislike mirrors ToggleLike for the dislike set.
func (r Reactions) ToggleDislike(uid string) Reactions {
	out := r.clone()
	if out.Disliked(uid) {
		out.Dislikes = without(out.Dislikes, uid)
		return out
	}
	out.Dislikes = append(out.Dislikes, uid)
	out.Likes = without(out.Likes, uid)
	return out
}

// Report adds uid to the report set. The second return is false when uid
// had already reported.
func (r Reactions) Report(uid string) (Reactions, bool) {
	if r.Reported(uid) {
		return r, false
	}
	out := r.clone()
	out.Reports = append(out.Reports, uid)
	return out, true
}

func (r Reactions) clone() Reactions {
	return Reactions{
		Likes:    append([]string{}, r.Likes...),
		Dislikes: append([]string{}, r.Dislikes...),
		Reports:  append([]string{}, r.Reports...),
	}
}

func without(set []string, uid string) []string {
	return slices.DeleteFunc(set, func(v string) bool { return v == uid })
}
