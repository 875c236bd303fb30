package processor

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	batchv1api "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// Processor transforms an exported object. Returning nil drops the object from the export.
type Processor interface {
	Process(obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
}

// Default is the processor chain applied to every exported object.
func Default() []Processor {
	return []Processor{
		&CommonProcessor{},
		&JobProcessor{},
		&ServiceProcessor{},
	}
}

type SkipOwnedProcessor struct {
	Logger logrus.FieldLogger
}

func (p *SkipOwnedProcessor) Process(obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	// https://kubernetes.io/docs/concepts/workloads/controllers/garbage-collection/
	if len(obj.GetOwnerReferences()) > 0 {
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"Kind": obj.GetKind(),
				"Name": obj.GetName(),
			}).Debugln("Object has OwnerReferences, skip")
		}
		return nil, nil
	}
	return obj, nil
}

func deleteStringFields(m map[string]string, fields ...string) map[string]string {
	for _, f := range fields {
		delete(m, f)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// CommonProcessor strips runtime metadata every object carries.
type CommonProcessor struct{}

func (p *CommonProcessor) Process(obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	rv := obj.DeepCopy()
	unstructured.RemoveNestedField(rv.Object, "metadata", "generation")
	rv.SetResourceVersion("")
	rv.SetSelfLink("")
	rv.SetUID("")
	rv.SetGenerateName("")
	rv.SetManagedFields(nil)
	unstructured.RemoveNestedField(rv.Object, "metadata", "creationTimestamp")
	rv.SetAnnotations(deleteStringFields(
		rv.GetAnnotations(),
		"kubectl.kubernetes.io/last-applied-configuration",
		"deployment.kubernetes.io/revision",
		"kubernetes.io/change-cause",
	))
	unstructured.RemoveNestedField(rv.Object, "status")
	return rv, nil
}

var jobControllerLabels = []string{
	"controller-uid",
	"batch.kubernetes.io/controller-uid",
}

// JobProcessor removes the labels the job controller derives from the job's uid.
type JobProcessor struct{}

func (p *JobProcessor) Process(obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj.GroupVersionKind() != batchv1api.SchemeGroupVersion.WithKind("Job") {
		return obj, nil
	}
	job := new(batchv1api.Job)
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.UnstructuredContent(), job); err != nil {
		return nil, errors.WithStack(err)
	}

	if job.Spec.Selector != nil {
		job.Spec.Selector.MatchLabels = deleteStringFields(job.Spec.Selector.MatchLabels, jobControllerLabels...)
		if len(job.Spec.Selector.MatchLabels) == 0 && len(job.Spec.Selector.MatchExpressions) == 0 {
			job.Spec.Selector = nil
		}
	}
	job.Spec.Template.ObjectMeta.Labels = deleteStringFields(job.Spec.Template.ObjectMeta.Labels, jobControllerLabels...)

	res, err := runtime.DefaultUnstructuredConverter.ToUnstructured(job)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rv := &unstructured.Unstructured{Object: res}
	unstructured.RemoveNestedField(rv.Object, "status")
	unstructured.RemoveNestedField(rv.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(rv.Object, "spec", "template", "metadata", "creationTimestamp")
	return rv, nil
}

// ServiceProcessor drops cluster IPs allocated by the API server. Headless services keep "None".
type ServiceProcessor struct{}

func (p *ServiceProcessor) Process(obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if obj.GetAPIVersion() != "v1" || obj.GetKind() != "Service" {
		return obj, nil
	}
	clusterIP, _, err := unstructured.NestedString(obj.Object, "spec", "clusterIP")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if clusterIP == "None" {
		return obj, nil
	}
	rv := obj.DeepCopy()
	unstructured.RemoveNestedField(rv.Object, "spec", "clusterIP")
	unstructured.RemoveNestedField(rv.Object, "spec", "clusterIPs")
	return rv, nil
}
