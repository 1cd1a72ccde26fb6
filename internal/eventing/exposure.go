package eventing

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
)

// apiRuleLabel is set by the API gateway on the VirtualService it generates
// for an APIRule, with the value <name>.<namespace>.
const apiRuleLabel = "apirule.gateway.kyma-project.io/v1beta1"

var (
	apiRuleResource      = schema.GroupVersionResource{Group: "gateway.kyma-project.io", Version: "v1beta1", Resource: "apirules"}
	functionResource     = schema.GroupVersionResource{Group: "serverless.kyma-project.io", Version: "v1alpha2", Resource: "functions"}
	subscriptionResource = schema.GroupVersionResource{Group: "eventing.kyma-project.io", Version: "v1alpha2", Resource: "subscriptions"}
)

// lastOrderSource publishes events on request and remembers the ones the
// subscription delivers back.
const lastOrderSource = `const axios = require("axios");
const received = new Set();
const proxy = "http://eventing-publisher-proxy.kyma-system";
const source = "commerce";
const type = "order.created.v1";

function publish(id, encoding) {
  const data = { orderCode: "987654321" };
  switch (encoding) {
    case "legacy":
      return axios.post(proxy + "/" + source + "/v1/events", {
        "event-type": "order.created", "event-type-version": "v1", "event-id": id,
        "event-time": new Date().toISOString(), data,
      });
    case "binary":
      return axios.post(proxy + "/publish", data, { headers: {
        "content-type": "application/json", "ce-specversion": "1.0", "ce-source": source,
        "ce-type": type, "ce-id": id,
      } });
    default:
      return axios.post(proxy + "/publish", {
        specversion: "1.0", source, type, id, datacontenttype: "application/json", data,
      }, { headers: { "content-type": "application/cloudevents+json" } });
  }
}

module.exports = {
  main: async function (event, context) {
    const req = event.extensions.request;
    const res = event.extensions.response;
    if (req.method === "GET" && req.path === "/function") {
      return { orderCode: "987654321" };
    }
    if (req.method === "GET") {
      if (!received.has(req.query.id)) {
        res.status(404);
        return "";
      }
      return { id: req.query.id };
    }
    const delivered = req.get("ce-id");
    if (delivered) {
      received.add(delivered);
      return "";
    }
    await publish(event.data.id, event.data.encoding);
    return { id: event.data.id };
  }
};
`

const lastOrderDependencies = `{"name": "lastorder", "version": "1.0.0", "dependencies": {"axios": "^1.6.0"}}`

func (c *Client) apiRule(namespace, name string, port int64, rules []any) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "gateway.kyma-project.io/v1beta1",
		"kind":       "APIRule",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
			"labels":    map[string]any{createdByLabel: createdByValue},
		},
		"spec": map[string]any{
			"gateway": c.config.Gateway,
			"host":    name,
			"service": map[string]any{"name": name, "port": port},
			"rules":   rules,
		},
	}}
}

func rule(path string, handler string, methods ...string) map[string]any {
	ms := make([]any, 0, len(methods))
	for _, m := range methods {
		ms = append(ms, m)
	}
	return map[string]any{
		"path":             path,
		"methods":          ms,
		"accessStrategies": []any{map[string]any{"handler": handler}},
	}
}

func (c *Client) function(namespace string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "serverless.kyma-project.io/v1alpha2",
		"kind":       "Function",
		"metadata": map[string]any{
			"name":      c.config.FunctionName,
			"namespace": namespace,
			"labels":    map[string]any{createdByLabel: createdByValue, "app": c.config.FunctionName},
		},
		"spec": map[string]any{
			"runtime": c.config.FunctionRuntime,
			"source": map[string]any{
				"inline": map[string]any{
					"source":       lastOrderSource,
					"dependencies": lastOrderDependencies,
				},
			},
		},
	}}
}

func (c *Client) subscription(namespace string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "eventing.kyma-project.io/v1alpha2",
		"kind":       "Subscription",
		"metadata": map[string]any{
			"name":      c.config.FunctionName,
			"namespace": namespace,
			"labels":    map[string]any{createdByLabel: createdByValue},
		},
		"spec": map[string]any{
			"sink":   fmt.Sprintf("http://%s.%s.svc.cluster.local", c.config.FunctionName, namespace),
			"source": eventSource,
			"types":  []any{fmt.Sprintf("%s.%s", eventType, eventVersion)},
		},
	}}
}

// ensureExposure creates the APIRules of the mock and of the function, the
// function itself and the subscription delivering events to it.
func (c *Client) ensureExposure(ctx context.Context, dyn dynamic.Interface, testNS string) error {
	objects := []struct {
		resource schema.GroupVersionResource
		obj      *unstructured.Unstructured
	}{
		{apiRuleResource, c.apiRule(c.config.MockNamespace, c.config.MockName, mockPort, []any{
			rule("/.*", "noop", "GET", "POST", "PUT", "DELETE"),
		})},
		{functionResource, c.function(testNS)},
		{subscriptionResource, c.subscription(testNS)},
		{apiRuleResource, c.apiRule(testNS, c.config.FunctionName, functionPort, []any{
			rule("/function", "oauth2_introspection", "GET"),
			rule("/", "noop", "GET", "POST"),
		})},
	}
	for _, o := range objects {
		_, err := dyn.Resource(o.resource).Namespace(o.obj.GetNamespace()).Create(ctx, o.obj, metav1.CreateOptions{})
		if err != nil && !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("while creating %s %s/%s: %w", o.obj.GetKind(), o.obj.GetNamespace(), o.obj.GetName(), err)
		}
	}
	return nil
}

// findVirtualService returns the VirtualService called name or, when there is
// none, the one the API gateway generated for the APIRule called name.
func findVirtualService(ctx context.Context, dyn dynamic.Interface, namespace, name string) (*unstructured.Unstructured, error) {
	resource := dyn.Resource(virtualServiceResource).Namespace(namespace)
	vs, err := resource.Get(ctx, name, metav1.GetOptions{})
	if err == nil {
		return vs, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("while getting virtual service %s/%s: %w", namespace, name, err)
	}
	list, listErr := resource.List(ctx, metav1.ListOptions{LabelSelector: fmt.Sprintf("%s=%s.%s", apiRuleLabel, name, namespace)})
	if listErr != nil {
		return nil, fmt.Errorf("while listing virtual services of APIRule %s/%s: %w", namespace, name, listErr)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("while getting virtual service %s/%s: %w", namespace, name, err)
	}
	return &list.Items[0], nil
}

func virtualServiceHost(ctx context.Context, dyn dynamic.Interface, namespace, name string) (string, error) {
	vs, err := findVirtualService(ctx, dyn, namespace, name)
	if err != nil {
		return "", err
	}
	hosts, _, err := unstructured.NestedStringSlice(vs.Object, "spec", "hosts")
	if err != nil || len(hosts) == 0 {
		return "", fmt.Errorf("virtual service %s/%s has no hosts", namespace, name)
	}
	return hosts[0], nil
}

// waitForHost waits until the API gateway exposed the service.
func (c *Client) waitForHost(ctx context.Context, dyn dynamic.Interface, namespace, name string) error {
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, c.config.RetryInterval, c.config.ReadyTimeout, true, func(ctx context.Context) (bool, error) {
		host, err := virtualServiceHost(ctx, dyn, namespace, name)
		if err != nil {
			lastErr = err
			return false, nil
		}
		c.log.Info(fmt.Sprintf("%s/%s is exposed on %s", namespace, name, host))
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("%s/%s is not exposed: %v: %w", namespace, name, lastErr, err)
	}
	return nil
}
