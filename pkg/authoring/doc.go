// Package authoring keeps a node/edge editing surface in sync with the canonical flow model.
//
// A Canvas holds editor-native nodes (position, label, draft data) and converts the whole
// working set to []domain.FlowNode after every edit, handing the result to its observer.
// A Builder owns a Canvas plus the flow's name and subject, validates the draft and commits
// it to a ports.FlowStore on Save.
//
// The first node of the draft always becomes the flow's start node. There is no separate
// "mark as start" action.
package authoring
