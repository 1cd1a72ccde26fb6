package oidc

import (
	"context"
	"fmt"

	rbacv1 "k8s.io/api/rbac/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const clusterAdminRole = "cluster-admin"

// AdminBindingExists reports whether user is a subject of a ClusterRoleBinding
// to the cluster-admin role.
func AdminBindingExists(ctx context.Context, k8sClient client.Client, user string) (bool, error) {
	var bindings rbacv1.ClusterRoleBindingList
	if err := k8sClient.List(ctx, &bindings); err != nil {
		return false, fmt.Errorf("while listing cluster role bindings: %w", err)
	}
	for _, crb := range bindings.Items {
		if crb.RoleRef.Kind != "ClusterRole" || crb.RoleRef.Name != clusterAdminRole {
			continue
		}
		for _, s := range crb.Subjects {
			if s.Kind == rbacv1.UserKind && s.Name == user {
				return true, nil
			}
		}
	}
	return false, nil
}

// EnsureAdminBindings fails with a MismatchError listing every user without
// a cluster-admin binding.
func EnsureAdminBindings(ctx context.Context, k8sClient client.Client, users []string) error {
	var missing []string
	for _, user := range users {
		exists, err := AdminBindingExists(ctx, k8sClient, user)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, user)
		}
	}
	if len(missing) > 0 {
		return &MismatchError{Subject: "cluster-admin bindings", Details: prefixAll("missing for ", missing)}
	}
	return nil
}

func EnsureNoAdminBinding(ctx context.Context, k8sClient client.Client, user string) error {
	exists, err := AdminBindingExists(ctx, k8sClient, user)
	if err != nil {
		return err
	}
	if exists {
		return &MismatchError{Subject: "cluster-admin bindings", Details: []string{fmt.Sprintf("binding still exists for %s", user)}}
	}
	return nil
}

func prefixAll(prefix string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = prefix + v
	}
	return out
}
